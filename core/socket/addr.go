package socket

import (
	"fmt"
	"net"
)

// RawAddr is a link layer plus IPv4 address
type RawAddr struct {
	MAC  net.HardwareAddr
	IP   net.IP
	Port uint16
}

// Addr is the address of a DHCP client that is reached by a directed
// unicast, i.e. the frame is sent to MAC without an ARP lookup. Local
// holds the address the request was sent to and is used as the source
// of the reply
type Addr struct {
	RawAddr
	Local RawAddr
}

// Network returns "udp(raw)" and implements net.Addr
func (a *Addr) Network() string {
	return "udp(raw)"
}

// String returns a string representation of the peer's address
func (a *Addr) String() string {
	return fmt.Sprintf("<%s>%s:%d", a.MAC.String(), a.IP.String(), a.Port)
}

var _ net.Addr = &Addr{}
