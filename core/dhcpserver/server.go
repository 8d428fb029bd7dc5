package dhcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/caddyserver/caddy"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/log"
	"github.com/nextdhcp/nextpool/core/socket"
)

// queueSize is the number of decoded requests that may wait for the worker
const queueSize = 64

type request struct {
	msg      *dhcpv4.DHCPv4
	peer     net.Addr
	received time.Time
}

// Server serves DHCP clients of one subnet. Datagrams are decoded by the
// reading goroutine and handed to a single worker that runs the middleware
// chain. The lease store is therefore only ever modified by that worker
type Server struct {
	cfg   *Config
	queue chan request
}

// NewServer returns a new DHCPv4 server for cfg
func NewServer(cfg *Config) (*Server, error) {
	if cfg.chain == nil {
		return nil, errors.New("middleware chain not built")
	}

	return &Server{
		cfg:   cfg,
		queue: make(chan request, queueSize),
	}, nil
}

// Serve is a NO-OP as TCP is not supported by dhcpserver. It
// implements the caddy.TCPServer interface
func (s *Server) Serve(l net.Listener) error {
	return nil
}

// Listen does nothing as TCP is not supported. It implements the
// caddy.TCPServer interface
func (s *Server) Listen() (net.Listener, error) {
	return nil, nil
}

// ListenPacket starts listening for DHCP request messages via UDP/Raw sockets
// This implements the caddy.UDPServer interface
func (s *Server) ListenPacket() (net.PacketConn, error) {
	conn, err := socket.ListenDHCP(s.cfg.Logger, s.cfg.IP, &s.cfg.Interface)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// ServePacket reads requests from c until reading fails permanently. This
// implements the caddy.UDPServer interface
func (s *Server) ServePacket(c net.PacketConn) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker(c)
	}()

	err := s.readLoop(c)

	close(s.queue)
	wg.Wait()

	return err
}

func (s *Server) readLoop(c net.PacketConn) error {
	payload := make([]byte, 4096)

	for {
		n, addr, err := c.ReadFrom(payload)

		if n > 0 {
			msg, decodeErr := dhcpv4.FromBytes(payload[:n])
			if decodeErr != nil {
				s.cfg.Logger.Warnf("dropping malformed message from %s: %s", addr, decodeErr)
			} else {
				s.queue <- request{msg: msg, peer: addr, received: time.Now()}
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return err
		}
	}
}

func (s *Server) worker(c net.PacketConn) {
	for req := range s.queue {
		s.serveAndLog(c, req)
	}
}

// OnStartupComplete is called when all serves of the same instance have
// been started. It implements the caddy.AfterStartup interface
func (s *Server) OnStartupComplete() {
	info := getStartupInfo([]*Config{s.cfg})
	if info != "" {
		// Print not Println because info contains a trailing new line
		fmt.Print(info)
	}
}

func (s *Server) serveAndLog(c net.PacketConn, req request) {
	// we must not panic while serving requests
	defer func() {
		if x := recover(); x != nil {
			s.cfg.Logger.Errorf("caught panic while serving a DHCP request from %s: %v\n%s", req.peer, x, debug.Stack())
		}
	}()

	if err := s.serve(c, req); err != nil {
		s.cfg.Logger.Warnf("failed to serve request from %s: %s", req.peer, err)
	}
}

func (s *Server) serve(c net.PacketConn, req request) error {
	cfg := s.cfg
	msg := req.msg

	resp, err := dhcpv4.NewReplyFromRequest(msg)
	if err != nil {
		return err
	}

	resp.ServerIPAddr = cfg.IP
	// RFC2131 requires the server identifier in every message we send
	resp.UpdateOption(dhcpv4.OptServerIdentifier(cfg.ServerID))
	resp.UpdateOption(dhcpv4.OptMessageType(dhcpv4.MessageTypeNone))

	ctx := context.Background()
	ctx = WithPeer(ctx, req.peer)
	ctx = WithRequestTimeStamp(ctx, req.received)
	ctx = log.AddRequestFields(ctx, msg)

	l := log.With(ctx, cfg.Logger)
	l.Debugf("-> %s from %s", msg.MessageType(), req.peer)

	err = cfg.chain.ServeDHCP(ctx, msg, resp)
	if errors.Is(err, ErrNoResponse) {
		return nil
	}

	if err != nil {
		return err
	}

	if resp.MessageType() == dhcpv4.MessageTypeNone {
		l.Debugf("no plugin produced a reply")
		return nil
	}

	addr := replyAddr(req.peer, cfg, msg, resp)

	l.Debugf("<- %s to %s (yiaddr=%s)\n%s", resp.MessageType(), addr, resp.YourIPAddr, resp.Options.Summary(nil))

	if _, err := c.WriteTo(resp.ToBytes(), addr); err != nil {
		return fmt.Errorf("sending %s: %w", resp.MessageType(), err)
	}

	return nil
}

// replyAddr returns the destination for resp. NAKs and replies to clients
// that asked for it are broadcasted. Relayed requests are answered to the
// relay agent and clients that filled in ciaddr of req are reached by UDP
// unicast. All others get a directed unicast if the request was received on
// the raw socket
func replyAddr(peer net.Addr, cfg *Config, req, resp *dhcpv4.DHCPv4) net.Addr {
	if specified(resp.GatewayIPAddr) {
		return &net.UDPAddr{IP: resp.GatewayIPAddr, Port: dhcpv4.ServerPort}
	}

	if resp.MessageType() == dhcpv4.MessageTypeNak || resp.IsBroadcast() {
		if _, ok := peer.(*socket.Addr); ok {
			// the UDP socket is not allowed to broadcast
			return &socket.Addr{
				RawAddr: socket.RawAddr{
					MAC:  broadcastMAC,
					IP:   net.IPv4bcast,
					Port: dhcpv4.ClientPort,
				},
				Local: socket.RawAddr{
					MAC:  cfg.Interface.HardwareAddr,
					IP:   cfg.IP,
					Port: dhcpv4.ServerPort,
				},
			}
		}

		return &net.UDPAddr{IP: net.IPv4bcast, Port: dhcpv4.ClientPort}
	}

	// NewReplyFromRequest does not copy ciaddr
	if specified(req.ClientIPAddr) {
		return &net.UDPAddr{IP: req.ClientIPAddr, Port: dhcpv4.ClientPort}
	}

	return tryMakeDirectedUnicastAddr(peer, cfg, resp)
}

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func specified(ip net.IP) bool {
	return ip != nil && !ip.IsUnspecified()
}

// tryMakeDirectedUnicastAddr checks if addr is a *socket.Addr and updates
// the local and remote address pair to be as specific as possible. An
// unspecified or broadcast source is replaced with the interface address
// and an unspecified destination with resp.YourIPAddr. Some clients, like
// Android, ignore replies from 255.255.255.255
func tryMakeDirectedUnicastAddr(addr net.Addr, cfg *Config, resp *dhcpv4.DHCPv4) net.Addr {
	a, ok := addr.(*socket.Addr)
	if !ok {
		return addr
	}

	if a.Local.IP == nil || a.Local.IP.IsUnspecified() || a.Local.IP.Equal(net.IPv4bcast) {
		a.Local.MAC = cfg.Interface.HardwareAddr
		a.Local.IP = cfg.IP
	}

	if !specified(a.RawAddr.IP) && specified(resp.YourIPAddr) {
		a.RawAddr.IP = resp.YourIPAddr
	}

	return a
}

// Compile-Time check
var _ caddy.Server = &Server{}
