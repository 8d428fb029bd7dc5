package socket

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/mdlayher/raw"
	"github.com/nextdhcp/nextpool/core/log"
)

// ErrShortBuffer is returned by ReadFrom if the DHCP payload does not fit
// into the provided buffer
var ErrShortBuffer = errors.New("socket: buffer too small for payload")

var (
	rawListenPacket = func(iface *net.Interface) (net.PacketConn, error) {
		return raw.ListenPacket(iface, etherTypeIPv4, nil)
	}

	udpListenPacket = func(ip net.IP, port int) (net.PacketConn, error) {
		return net.ListenUDP("udp4", &net.UDPAddr{
			IP:   ip,
			Port: port,
		})
	}
)

const etherTypeIPv4 = 0x800

// ListenDHCP opens a UDP and an AF_PACKET socket for serving DHCP on ip.
// If iface is nil the interface that has ip assigned is used
func ListenDHCP(l log.Logger, ip net.IP, iface *net.Interface) (*DHCPConn, error) {
	if iface == nil {
		var err error
		iface, err = InterfaceByIP(ip)
		if err != nil {
			return nil, err
		}
	}

	udp, err := udpListenPacket(ip, dhcpv4.ServerPort)
	if err != nil {
		return nil, err
	}

	r, err := rawListenPacket(iface)
	if err != nil {
		udp.Close()
		return nil, err
	}

	return newConn(l, ip, iface, udp, r), nil
}

func newConn(l log.Logger, ip net.IP, iface *net.Interface, udp, r net.PacketConn) *DHCPConn {
	p := &DHCPConn{
		udp:   udp,
		raw:   r,
		iface: iface,
		ip:    ip,
		l:     l,
	}

	p.wg.Add(1)
	go p.discardUDP()

	return p
}

// DHCPConn implements net.PacketConn. Requests are received on an AF_PACKET
// socket so clients without an address can be served. Replies go either
// through the raw socket (for *Addr destinations) or the UDP socket
type DHCPConn struct {
	udp   net.PacketConn // routable unicasts and broadcasts
	raw   net.PacketConn // reception and directed unicasts
	iface *net.Interface
	ip    net.IP
	wg    sync.WaitGroup
	l     log.Logger
}

// Close closes both sockets and returns the first error encountered
func (p *DHCPConn) Close() error {
	firstErr := p.udp.Close()

	if err := p.raw.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	p.wg.Wait()

	return firstErr
}

// LocalAddr returns the address of the UDP socket
func (p *DHCPConn) LocalAddr() net.Addr {
	return p.udp.LocalAddr()
}

// Interface returns the network interface the raw socket is bound to
func (p *DHCPConn) Interface() *net.Interface {
	return p.iface
}

// ReadFrom reads the next DHCP request from the raw socket. Frames that do
// not carry a UDP datagram for the DHCP server port are skipped. The
// returned address is always a *Addr
func (p *DHCPConn) ReadFrom(b []byte) (int, net.Addr, error) {
	buf := make([]byte, 4096)
	for {
		n, _, err := p.raw.ReadFrom(buf)

		if n > 0 {
			payload, addr, ok := extractUDPPayload(dhcpv4.ServerPort, buf[:n])
			if ok {
				if len(b) < len(payload) {
					return 0, addr, ErrShortBuffer
				}

				return copy(b, payload), addr, err
			}
		}

		if err != nil {
			return 0, nil, err
		}
	}
}

// WriteTo sends b to addr. A *Addr is written as a complete ethernet frame
// to the raw socket. Anything else goes through the UDP socket
func (p *DHCPConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	r, ok := addr.(*Addr)
	if !ok {
		p.l.Debugf("sending UDP response %s -> %s", p.udp.LocalAddr(), addr)
		return p.udp.WriteTo(b, addr)
	}

	srcMAC := p.iface.HardwareAddr
	srcIP := p.ip

	if r.Local.MAC != nil {
		srcMAC = r.Local.MAC
	}

	if r.Local.IP != nil {
		srcIP = r.Local.IP
	}

	p.l.Debugf("sending directed unicast %s (%s) -> %s (%s)", srcIP, srcMAC, r.IP, r.MAC)

	frame, err := PreparePacket(srcMAC, srcIP, r.MAC, r.IP, b)
	if err != nil {
		return 0, err
	}

	if _, err := p.raw.WriteTo(frame, &raw.Addr{HardwareAddr: r.MAC}); err != nil {
		return 0, err
	}

	return len(b), nil
}

// SetDeadline sets the read and write deadlines
func (p *DHCPConn) SetDeadline(t time.Time) error {
	firstErr := p.SetReadDeadline(t)
	if err := p.SetWriteDeadline(t); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// SetReadDeadline sets the read deadline of the raw socket
func (p *DHCPConn) SetReadDeadline(t time.Time) error {
	return p.raw.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline of both sockets
func (p *DHCPConn) SetWriteDeadline(t time.Time) error {
	firstErr := p.raw.SetWriteDeadline(t)
	if err := p.udp.SetWriteDeadline(t); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// discardUDP drains the UDP socket. Requests are read from the raw socket
// so everything arriving here is a duplicate
func (p *DHCPConn) discardUDP() {
	defer p.wg.Done()

	buf := make([]byte, 1024)
	for {
		if _, _, err := p.udp.ReadFrom(buf); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return
		}
	}
}

var _ net.PacketConn = &DHCPConn{}
