package journal

import (
	"errors"
	"sync"

	"github.com/apex/log"
	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/events"
)

func init() {
	caddy.RegisterPlugin("journal", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupJournal,
	})
}

// recorder appends lease events to a journal that is opened when the
// server starts
type recorder struct {
	path   string
	events []caddy.EventName
	log    log.Interface

	l       sync.Mutex
	journal *Journal
}

func (r *recorder) open() error {
	j, err := Open(r.path)
	if err != nil {
		return err
	}

	r.l.Lock()
	r.journal = j
	r.l.Unlock()

	r.log.Infof("writing lease events to %s", r.path)
	return nil
}

func (r *recorder) close() error {
	r.l.Lock()
	j := r.journal
	r.journal = nil
	r.l.Unlock()

	if j == nil {
		return nil
	}

	return j.Close()
}

// record implements events.LeaseEventHook
func (r *recorder) record(_ caddy.EventName, e *events.LeaseEvent) error {
	r.l.Lock()
	j := r.journal
	r.l.Unlock()

	if j == nil {
		return nil
	}

	if err := j.Append(e); err != nil && !errors.Is(err, ErrClosed) {
		r.log.Errorf("failed to append event %s: %s", e.ID, err)
		return err
	}

	return nil
}

func setupJournal(c *caddy.Controller) error {
	r, err := parse(c)
	if err != nil {
		return err
	}

	c.OnStartup(r.open)
	c.OnShutdown(r.close)

	events.Subscribe("journal", r.record, r.events...)

	return nil
}

// journal /var/lib/nextpool/journal.db
//
//	journal {
//		file /var/lib/nextpool/journal.db
//		events lease-created lease-released
//	}
func parse(c *caddy.Controller) (*recorder, error) {
	var r *recorder

	for c.Next() {
		if r != nil {
			return nil, c.Err("only one journal per subnet is supported")
		}

		r = &recorder{log: log.Log.WithField("plugin", "journal")}

		for c.NextBlock() {
			switch c.Val() {
			case "file":
				if !c.NextArg() {
					return nil, c.ArgErr()
				}
				r.path = c.Val()
			case "events":
				names := c.RemainingArgs()
				if len(names) == 0 {
					return nil, c.ArgErr()
				}

				for _, n := range names {
					if !events.Valid(caddy.EventName(n)) {
						return nil, c.Errf("unknown lease event %q", n)
					}
					r.events = append(r.events, caddy.EventName(n))
				}
			default:
				return nil, c.Errf("unknown property %q", c.Val())
			}

			if c.NextArg() {
				return nil, c.ArgErr()
			}
		}

		args := c.RemainingArgs()
		switch {
		case len(args) == 1 && r.path == "":
			r.path = args[0]
		case len(args) > 0:
			return nil, c.ArgErr()
		}

		if r.path == "" {
			return nil, c.Err("no journal file configured")
		}
	}

	if r == nil {
		return nil, c.Err("no journal configured")
	}

	return r, nil
}
