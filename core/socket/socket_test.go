package socket

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/mdlayher/raw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	serverMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	clientMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	serverIP  = net.IP{192, 168, 0, 76}
)

// fakeConn is an in-memory net.PacketConn
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	l       sync.Mutex
	written [][]byte
	dst     []net.Addr
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 10),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case p := <-f.in:
		return copy(b, p), &net.UDPAddr{}, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	f.l.Lock()
	defer f.l.Unlock()
	f.written = append(f.written, append([]byte(nil), b...))
	f.dst = append(f.dst, addr)
	return len(b), nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) LocalAddr() net.Addr                { return &net.UDPAddr{IP: serverIP, Port: 67} }
func (f *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func testLogger() log.Interface {
	return &log.Logger{Handler: discard.New(), Level: log.DebugLevel}
}

func TestPreparePacketRoundTrip(t *testing.T) {
	payload := []byte("hello dhcp")
	frame, err := PreparePacket(serverMAC, serverIP, clientMAC, net.IPv4(192, 168, 0, 180), payload)
	require.NoError(t, err)

	// server to client, so nothing for the server port
	_, _, ok := extractUDPPayload(67, frame)
	assert.False(t, ok)

	got, addr, ok := extractUDPPayload(68, frame)
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, serverMAC, addr.MAC)
	assert.Equal(t, "192.168.0.76", addr.IP.String())
	assert.Equal(t, uint16(67), addr.Port)
	assert.Equal(t, clientMAC, addr.Local.MAC)
	assert.Equal(t, "192.168.0.180", addr.Local.IP.String())
}

func TestExtractUDPPayloadGarbage(t *testing.T) {
	_, _, ok := extractUDPPayload(67, []byte{0x01, 0x02, 0x03})
	assert.False(t, ok)
}

func TestConnReadFrom(t *testing.T) {
	r := newFakeConn()
	udp := newFakeConn()
	conn := newConn(testLogger(), serverIP, &net.Interface{Name: "eth0", HardwareAddr: serverMAC}, udp, r)
	defer conn.Close()

	// a frame for the client port is skipped
	other, err := PreparePacket(clientMAC, net.IPv4zero, serverMAC, serverIP, []byte("skipped"))
	require.NoError(t, err)
	r.in <- other

	frame := requestFrame(t, []byte("request"))
	r.in <- frame

	buf := make([]byte, 1500)
	n, addr, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "request", string(buf[:n]))

	a, ok := addr.(*Addr)
	require.True(t, ok)
	assert.Equal(t, clientMAC, a.MAC)
	assert.True(t, a.IP.Equal(net.IPv4zero))
	assert.Equal(t, uint16(68), a.Port)

	r.in <- frame
	_, _, err = conn.ReadFrom(make([]byte, 2))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

// requestFrame builds a client to server frame by swapping the ports of
// a prepared reply
func requestFrame(t *testing.T, payload []byte) []byte {
	frame, err := PreparePacket(clientMAC, net.IPv4zero, net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, net.IPv4bcast, payload)
	require.NoError(t, err)

	// ethernet (14) + ipv4 without options (20), then source and destination port
	frame[34], frame[35], frame[36], frame[37] = 0, 68, 0, 67

	// zero the UDP checksum, it is optional for IPv4
	frame[40], frame[41] = 0, 0

	return frame
}

func TestConnWriteTo(t *testing.T) {
	r := newFakeConn()
	udp := newFakeConn()
	conn := newConn(testLogger(), serverIP, &net.Interface{Name: "eth0", HardwareAddr: serverMAC}, udp, r)
	defer conn.Close()

	n, err := conn.WriteTo([]byte("bcast"), &net.UDPAddr{IP: net.IPv4bcast, Port: 68})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, udp.written, 1)
	assert.Empty(t, r.written)

	dst := &Addr{RawAddr: RawAddr{MAC: clientMAC, IP: net.IPv4(192, 168, 0, 180)}}
	n, err = conn.WriteTo([]byte("direct"), dst)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	require.Len(t, r.written, 1)

	rawDst, ok := r.dst[0].(*raw.Addr)
	require.True(t, ok)
	assert.Equal(t, clientMAC, rawDst.HardwareAddr)

	payload, from, ok := extractUDPPayload(68, r.written[0])
	require.True(t, ok)
	assert.Equal(t, "direct", string(payload))
	assert.Equal(t, serverMAC, from.MAC)
	assert.Equal(t, "192.168.0.76", from.IP.String())
}

func TestConnClose(t *testing.T) {
	r := newFakeConn()
	udp := newFakeConn()
	conn := newConn(testLogger(), serverIP, &net.Interface{}, udp, r)

	// discardUDP must drain and terminate
	udp.in <- []byte("dup")
	assert.NoError(t, conn.Close())
}

func TestAddr(t *testing.T) {
	a := &Addr{RawAddr: RawAddr{MAC: clientMAC, IP: net.IPv4(10, 0, 0, 1), Port: 68}}
	assert.Equal(t, "udp(raw)", a.Network())
	assert.Equal(t, "<02:00:00:00:00:02>10.0.0.1:68", a.String())
}
