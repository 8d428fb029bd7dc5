package gotify

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/caddyserver/caddy"
	"github.com/gotify/go-api-client/v2/auth"
	"github.com/gotify/go-api-client/v2/client/message"
	"github.com/gotify/go-api-client/v2/gotify"
	"github.com/gotify/go-api-client/v2/models"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/log"
	"github.com/nextdhcp/nextpool/core/matcher"
)

const (
	defaultTitle    = "NextPool"
	defaultPriority = 5
)

type (
	// msgFactory creates the gotify notification message
	// from the given lease event
	msgFactory func(ctx context.Context, e *events.LeaseEvent) (string, error)

	// gotifyPlugin matches lease events against a set of conditions
	// and sends notifications
	gotifyPlugin struct {
		notifications []*notification
		l             log.Logger
		wg            sync.WaitGroup
	}

	// notification combines the matcher (condition) and a message
	// factory for a gotify notification
	notification struct {
		*matcher.Matcher
		msg      msgFactory
		title    msgFactory
		priority int
		srv      string
		token    string
	}
)

// notify sends msg to the gotify server at srv
var notify = func(srv *url.URL, token string, msg *message.CreateMessageParams) error {
	cli := gotify.NewClient(srv, &http.Client{Timeout: 10 * time.Second})

	_, err := cli.Message.CreateMessage(msg, auth.TokenAuth(token))
	return err
}

// Prepare checks if we should send a notification for the given event and returns
// the title and message body. An empty message body indicates that no notification
// should be sent
func (n *notification) Prepare(ctx context.Context, e *events.LeaseEvent) (string, string, error) {
	if n.msg == nil {
		return "", "", nil
	}

	matched, err := n.Match(e)
	if err != nil {
		return "", "", err
	}

	if !matched {
		return "", "", nil
	}

	msg, err := n.msg(ctx, e)
	if err != nil {
		return "", "", err
	}

	var title string

	if n.title != nil {
		title, _ = n.title(ctx, e)
	}

	if title == "" {
		title = defaultTitle
	}

	return title, msg, nil
}

// Send sends a notification with title and msg
func (n *notification) Send(title, msg string) error {
	gotifyURL, err := url.Parse(n.srv)
	if err != nil {
		return err
	}

	priority := n.priority
	if priority == 0 {
		priority = defaultPriority
	}

	params := message.NewCreateMessageParams()
	params.Body = &models.MessageExternal{
		Title:    title,
		Message:  msg,
		Priority: priority,
	}

	return notify(gotifyURL, n.token, params)
}

// addNotification adds a new notification to the gotify plugin
func (g *gotifyPlugin) addNotification(n *notification) {
	g.notifications = append(g.notifications, n)
}

// findLastCreds returns the last credentials used for a notification
func (g *gotifyPlugin) findLastCreds() (string, string, bool) {
	if len(g.notifications) == 0 {
		return "", "", false
	}

	last := g.notifications[len(g.notifications)-1]
	return last.srv, last.token, true
}

// onLeaseEvent implements events.LeaseEventHook and sends all matching
// notifications in the background
func (g *gotifyPlugin) onLeaseEvent(_ caddy.EventName, e *events.LeaseEvent) error {
	for _, n := range g.notifications {
		g.wg.Add(1)
		go func(n *notification) {
			defer g.wg.Done()

			title, body, err := n.Prepare(context.Background(), e)
			if err != nil {
				g.l.Warnf("failed to prepare notification: %s", err.Error())
				return
			}

			if body == "" {
				return
			}

			g.l.Debugf("sending notification: %s\n%s", title, body)

			if err := n.Send(title, body); err != nil {
				g.l.Warnf("failed to send notification: %s", err.Error())
				return
			}

			g.l.Debugf("notification sent via %s: %s\n%s", n.srv, title, body)
		}(n)
	}

	return nil
}
