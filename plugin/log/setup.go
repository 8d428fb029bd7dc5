package log

import (
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/caddyserver/caddy"
	"github.com/mattn/go-isatty"
)

func init() {
	caddy.RegisterPlugin("log", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupLogging,
	})
}

var isTerminal = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// setupLogging sets the level of the default logger, e.g. "log debug"
func setupLogging(c *caddy.Controller) error {
	c.Next()

	if !c.NextArg() {
		return c.ArgErr()
	}

	l, err := log.ParseLevel(c.Val())
	if err != nil {
		return c.SyntaxErr(err.Error())
	}

	if c.NextArg() {
		return c.ArgErr()
	}

	if c.Next() {
		return c.SyntaxErr("invalid token or multiple \"log\" configurations")
	}

	log.SetLevel(l)

	if isTerminal() {
		log.SetHandler(cli.New(os.Stdout))
	}

	return nil
}
