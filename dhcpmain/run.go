// Package dhcpmain loads the Dhcpfile and runs the caddy instance serving it
package dhcpmain

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/apex/log"
	"github.com/caddyserver/caddy"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	conf       string
	serverType = "dhcpv4"
)

func init() {
	caddy.DefaultConfigFile = "Dhcpfile"
	caddy.Quiet = false

	caddy.RegisterCaddyfileLoader("flag", caddy.LoaderFunc(configLoader))
	caddy.SetDefaultCaddyfileLoader("default", caddy.LoaderFunc(defaultLoader))

	caddy.AppName = "NextPool"
	caddy.AppVersion = Version
}

// Run loads the Dhcpfile at path and blocks until the server stopped. An
// empty path loads Dhcpfile from the working directory. Use "stdin" or "-"
// to read the configuration from standard input
func Run(path string) error {
	conf = path
	caddy.TrapSignals()

	dhcpfile, err := caddy.LoadCaddyfile(serverType)
	if err != nil {
		return fmt.Errorf("loading %s: %w", describe(path), err)
	}

	instance, err := caddy.Start(dhcpfile)
	if err != nil {
		return err
	}

	log.Infof("%s %s started", caddy.AppName, caddy.AppVersion)
	instance.Wait()

	return nil
}

func describe(path string) string {
	if path == "" {
		return caddy.DefaultConfigFile
	}
	return path
}

func configLoader(serverType string) (caddy.Input, error) {
	if conf == "" {
		return nil, nil
	}

	if conf == "stdin" || conf == "-" {
		return caddy.CaddyfileFromPipe(os.Stdin, serverType)
	}

	file, err := ioutil.ReadFile(conf)
	if err != nil {
		return nil, err
	}

	return caddy.CaddyfileInput{
		Contents:       file,
		Filepath:       conf,
		ServerTypeName: serverType,
	}, nil
}

func defaultLoader(serverType string) (caddy.Input, error) {
	conf = caddy.DefaultConfigFile
	return configLoader(serverType)
}
