package lease

import (
	"bytes"
	"fmt"
	"net"
	"time"
)

// Lease binds a pool address to the hardware address of a client
type Lease struct {
	// Address is the leased address as a big-endian integer
	Address uint32

	// Owner is the hardware address of the client holding the lease
	Owner net.HardwareAddr

	// Expires holds the time the lease expires. Expired leases stay
	// in the store until the address is handed out again
	Expires time.Time
}

// IP returns the leased address
func (l *Lease) IP() net.IP {
	return Int2IP(l.Address)
}

// ExpiredAt returns true if the lease was or will be expired at t
func (l *Lease) ExpiredAt(t time.Time) bool {
	return t.After(l.Expires)
}

// OwnedBy reports whether hw holds the lease
func (l *Lease) OwnedBy(hw net.HardwareAddr) bool {
	return bytes.Equal(l.Owner, hw)
}

// String implements fmt.Stringer
func (l *Lease) String() string {
	return fmt.Sprintf("%s (%s; expires %s)", l.IP(), l.Owner, l.Expires.Format(time.RFC3339))
}

// Clone returns a deep copy of the lease
func (l *Lease) Clone() *Lease {
	return &Lease{
		Address: l.Address,
		Owner:   append(net.HardwareAddr{}, l.Owner...),
		Expires: l.Expires,
	}
}
