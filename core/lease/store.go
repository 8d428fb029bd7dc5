package lease

import (
	"net"
	"sort"
	"time"
)

// Store is the authoritative table of address leases for a single pool.
// A Store is not safe for concurrent use: it must be owned by exactly one
// goroutine (see SharedStore for read access from other goroutines)
type Store struct {
	pool       Pool
	clock      Clock
	lastOffset uint32
	leases     map[uint32]*Lease // maps the address to it's lease
	byOwner    map[string]uint32 // maps net.HardwareAddr.String() to the most recently committed address
}

// NewStore returns an empty store for pool. If clock is nil the
// system clock is used
func NewStore(pool Pool, clock Clock) *Store {
	if clock == nil {
		clock = SystemClock{}
	}

	return &Store{
		pool:  pool,
		clock: clock,
		// the first call to NextCandidate wraps around to the
		// start of the pool
		lastOffset: pool.Count - 1,
		leases:     make(map[uint32]*Lease),
		byOwner:    make(map[string]uint32),
	}
}

// Pool returns the address pool managed by the store
func (s *Store) Pool() Pool {
	return s.pool
}

// Now returns the current time as seen by the store's clock
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// IsAvailable reports whether addr may be handed out to owner. That is the
// case if addr is part of the pool and is either unused, already bound to
// owner or bound to someone else by a lease that has expired
func (s *Store) IsAvailable(owner net.HardwareAddr, addr uint32) bool {
	return s.IsAvailableAt(owner, addr, s.clock.Now())
}

// IsAvailableAt is like IsAvailable but judges expiry as of now. It allows a
// decision that checks several addresses to read the clock only once
func (s *Store) IsAvailableAt(owner net.HardwareAddr, addr uint32, now time.Time) bool {
	if !s.pool.Contains(addr) {
		return false
	}

	l, ok := s.leases[addr]
	if !ok {
		return true
	}

	return l.OwnedBy(owner) || l.ExpiredAt(now)
}

// CurrentLease returns the address bound to owner, whether the lease
// is still valid or not
func (s *Store) CurrentLease(owner net.HardwareAddr) (uint32, bool) {
	addr, ok := s.byOwner[owner.String()]
	return addr, ok
}

// Get returns a copy of the lease for addr
func (s *Store) Get(addr uint32) (Lease, bool) {
	l, ok := s.leases[addr]
	if !ok {
		return Lease{}, false
	}

	return *l.Clone(), true
}

// NextCandidate advances the allocation cursor by one and returns the
// address it points to. Successive calls walk the whole pool in a round
// robin fashion
func (s *Store) NextCandidate() uint32 {
	s.lastOffset = (s.lastOffset + 1) % s.pool.Count
	return s.pool.Addr(s.lastOffset)
}

// Put binds addr to owner until expires. Any existing lease for addr is
// overwritten. Put does not validate anything, callers must check
// IsAvailable first
func (s *Store) Put(addr uint32, owner net.HardwareAddr, expires time.Time) {
	if old, ok := s.leases[addr]; ok {
		delete(s.leases, addr)
		s.unindex(old)
	}

	s.leases[addr] = &Lease{
		Address: addr,
		Owner:   append(net.HardwareAddr{}, owner...),
		Expires: expires,
	}
	s.byOwner[owner.String()] = addr
}

// Remove deletes the lease for addr. It's a no-op if there is none
func (s *Store) Remove(addr uint32) {
	l, ok := s.leases[addr]
	if !ok {
		return
	}

	delete(s.leases, addr)
	s.unindex(l)
}

// unindex drops l from the owner index. l must already be removed
// from the lease table
func (s *Store) unindex(l *Lease) {
	key := l.Owner.String()
	if addr, ok := s.byOwner[key]; !ok || addr != l.Address {
		return
	}

	delete(s.byOwner, key)

	// Put never refuses a second address for the same owner so keep
	// pointing at whatever else it still holds
	for _, other := range s.leases {
		if other.OwnedBy(l.Owner) {
			s.byOwner[key] = other.Address
			return
		}
	}
}

// Len returns the number of entries, including expired ones
func (s *Store) Len() int {
	return len(s.leases)
}

// Active returns the number of leases that have not yet expired
func (s *Store) Active() int {
	now := s.clock.Now()
	n := 0

	for _, l := range s.leases {
		if !l.ExpiredAt(now) {
			n++
		}
	}

	return n
}

// Leases returns a copy of all entries ordered by address
func (s *Store) Leases() []Lease {
	leases := make([]Lease, 0, len(s.leases))
	for _, l := range s.leases {
		leases = append(leases, *l.Clone())
	}

	sort.Slice(leases, func(i, j int) bool {
		return leases[i].Address < leases[j].Address
	})

	return leases
}
