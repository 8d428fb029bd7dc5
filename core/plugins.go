// Package core links the dhcpv4 server type and all built-in directives
// into the binary
package core

import (
	// the dhcpv4 server type
	_ "github.com/nextdhcp/nextpool/core/dhcpserver"

	// built-in directives
	_ "github.com/nextdhcp/nextpool/plugin/boot"
	_ "github.com/nextdhcp/nextpool/plugin/gotify"
	_ "github.com/nextdhcp/nextpool/plugin/ifname"
	_ "github.com/nextdhcp/nextpool/plugin/journal"
	_ "github.com/nextdhcp/nextpool/plugin/lease"
	_ "github.com/nextdhcp/nextpool/plugin/log"
	_ "github.com/nextdhcp/nextpool/plugin/logger"
	_ "github.com/nextdhcp/nextpool/plugin/mqtt"
	_ "github.com/nextdhcp/nextpool/plugin/option"
	_ "github.com/nextdhcp/nextpool/plugin/pool"
	_ "github.com/nextdhcp/nextpool/plugin/prometheus"
	_ "github.com/nextdhcp/nextpool/plugin/script"
	_ "github.com/nextdhcp/nextpool/plugin/serverid"
)
