package dhcpserver

// Directives that we register at caddy. The order defines the order of
// the middleware chain
var Directives = []string{
	"log",
	"logger",
	"interface",
	"serverid",
	"lease",
	"option",
	"journal",
	"script",
	"mqtt",
	"gotify",
	"prometheus",
	"boot",
	"pool",
}
