package lease

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
)

// ErrInvalidPool is returned when a pool definition cannot be used
var ErrInvalidPool = errors.New("invalid address pool")

// Pool is the range of IPv4 addresses that may be leased to clients. It
// covers the half-open range [Start, Start+Count)
type Pool struct {
	// Start is the first address of the pool as a big-endian integer
	Start uint32

	// Count is the number of addresses covered by the pool
	Count uint32
}

// NewPool returns a pool starting at start and spanning count addresses
func NewPool(start net.IP, count int) (Pool, error) {
	s, ok := IP2Int(start)
	if !ok {
		return Pool{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidPool, start)
	}

	if count <= 0 {
		return Pool{}, fmt.Errorf("%w: size must be positive", ErrInvalidPool)
	}

	if uint64(s)+uint64(count) > math.MaxUint32+1 {
		return Pool{}, fmt.Errorf("%w: %s + %d exceeds the IPv4 address space", ErrInvalidPool, start, count)
	}

	return Pool{Start: s, Count: uint32(count)}, nil
}

// ParsePool is like NewPool but parses the start address
func ParsePool(start string, count int) (Pool, error) {
	ip := net.ParseIP(start)
	if ip == nil {
		return Pool{}, fmt.Errorf("%w: %q is not an IP address", ErrInvalidPool, start)
	}

	return NewPool(ip, count)
}

// Contains reports whether addr is inside the pool
func (p Pool) Contains(addr uint32) bool {
	return addr >= p.Start && uint64(addr) < uint64(p.Start)+uint64(p.Count)
}

// ContainsIP is like Contains but accepts a net.IP
func (p Pool) ContainsIP(ip net.IP) bool {
	addr, ok := IP2Int(ip)
	return ok && p.Contains(addr)
}

// Addr returns the address at offset
func (p Pool) Addr(offset uint32) uint32 {
	return p.Start + offset
}

// Offset returns the offset of addr inside the pool
func (p Pool) Offset(addr uint32) (uint32, bool) {
	if !p.Contains(addr) {
		return 0, false
	}

	return addr - p.Start, true
}

// Last returns the last address inside the pool
func (p Pool) Last() uint32 {
	return p.Start + p.Count - 1
}

func (p Pool) String() string {
	return fmt.Sprintf("%s-%s", Int2IP(p.Start), Int2IP(p.Last()))
}

// IP2Int converts a IPv4 address to it's unsigned integer representation
func IP2Int(ip net.IP) (uint32, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}

	return binary.BigEndian.Uint32(v4), true
}

// Int2IP converts a uint32 to it's IPv4 representation
func Int2IP(i uint32) net.IP {
	r := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(r, i)
	return r
}
