package lease

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	cases := []struct {
		start string
		count int
		err   bool
	}{
		{"192.168.0.180", 100, false},
		{"10.0.0.0", 1, false},
		{"255.255.255.255", 1, false},
		{"255.255.255.255", 2, true},
		{"10.0.0.1", 0, true},
		{"10.0.0.1", -3, true},
		{"fe80::1", 10, true},
		{"not-an-ip", 10, true},
	}

	for idx, c := range cases {
		p, err := ParsePool(c.start, c.count)
		if c.err {
			assert.Error(t, err, "case %d", idx)
			assert.True(t, errors.Is(err, ErrInvalidPool), "case %d", idx)
			continue
		}

		require.NoError(t, err, "case %d", idx)
		assert.Equal(t, uint32(c.count), p.Count, "case %d", idx)
	}
}

func TestPoolRange(t *testing.T) {
	p, err := NewPool(net.IP{192, 168, 0, 180}, 100)
	require.NoError(t, err)

	start, _ := IP2Int(net.IP{192, 168, 0, 180})
	assert.Equal(t, start, p.Start)

	assert.True(t, p.ContainsIP(net.IP{192, 168, 0, 180}))
	assert.True(t, p.ContainsIP(net.IP{192, 168, 1, 23}))
	assert.False(t, p.ContainsIP(net.IP{192, 168, 1, 24}))
	assert.False(t, p.ContainsIP(net.IP{192, 168, 0, 179}))
	assert.False(t, p.ContainsIP(nil))

	assert.Equal(t, net.IP{192, 168, 1, 23}, Int2IP(p.Last()))
	assert.Equal(t, "192.168.0.180-192.168.1.23", p.String())

	off, ok := p.Offset(p.Addr(42))
	assert.True(t, ok)
	assert.Equal(t, uint32(42), off)

	_, ok = p.Offset(p.Start - 1)
	assert.False(t, ok)
}

func TestPoolEndOfAddressSpace(t *testing.T) {
	p, err := NewPool(net.IP{255, 255, 255, 250}, 6)
	require.NoError(t, err)

	assert.True(t, p.Contains(0xffffffff))
	assert.False(t, p.Contains(0))
	assert.Equal(t, uint32(0xffffffff), p.Last())
}

func TestIP2Int(t *testing.T) {
	i, ok := IP2Int(net.ParseIP("192.168.0.1"))
	assert.True(t, ok)
	assert.Equal(t, uint32(0xc0a80001), i)

	_, ok = IP2Int(net.ParseIP("::1"))
	assert.False(t, ok)

	assert.Equal(t, net.IP{192, 168, 0, 1}, Int2IP(0xc0a80001))
}
