package registry

// Addr is a fabric (node, port) address. It is used both for server
// locations and for subscriber identity, never as an owning reference
// (spec §9: lookups hold addresses, not pointers into the server map,
// which avoids any cyclic reference between the two tables).
type Addr struct {
	Node uint32
	Port uint32
}

// Lookup is an outstanding lookup subscription (spec §3, "Lookup
// record"). A Service or Instance of zero acts as a wildcard for that
// dimension, using the same Filter semantics the registry applies to
// Query.
type Lookup struct {
	Service    uint32
	Instance   uint32
	Subscriber Addr
}

// Subscriptions is the append-only outstanding-lookup table described in
// spec §4.D. Duplicates are legal: no deduplication is performed, and
// each duplicate is notified independently.
type Subscriptions struct {
	lookups []Lookup
}

// NewSubscriptions creates an empty subscription table.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{}
}

// Add appends a new lookup subscription.
func (s *Subscriptions) Add(subscriber Addr, service, instance uint32) {
	s.lookups = append(s.lookups, Lookup{Service: service, Instance: instance, Subscriber: subscriber})
}

// RemoveMatching removes every lookup whose subscriber equals subscriber
// and whose Service equals service, and whose Instance is either zero
// (a stored wildcard) or equal to instance. This is the asymmetric
// DEL_LOOKUP semantics from spec §4.D: a DEL_LOOKUP with an instance
// wildcard cancels only a prior wildcard subscription for that service,
// but a stored wildcard subscription is cancelled by any DEL_LOOKUP
// naming that service regardless of the instance requested.
func (s *Subscriptions) RemoveMatching(subscriber Addr, service, instance uint32) {
	kept := s.lookups[:0]
	for _, l := range s.lookups {
		remove := l.Subscriber == subscriber &&
			l.Service == service &&
			(l.Instance == 0 || l.Instance == instance)
		if !remove {
			kept = append(kept, l)
		}
	}
	s.lookups = kept
}

// RemoveBySubscriber removes every lookup registered by subscriber,
// used when DEL_CLIENT retires a local client. It filters in place,
// compacting the kept lookups into the same backing array; the write
// position never passes the read position, so no lookup is overwritten
// before it has been examined.
func (s *Subscriptions) RemoveBySubscriber(subscriber Addr) {
	kept := s.lookups[:0]
	for _, l := range s.lookups {
		if l.Subscriber != subscriber {
			kept = append(kept, l)
		}
	}
	s.lookups = kept
}

// Match yields every lookup whose filter accepts srv: Service zero or
// exact, AND Instance zero or exact (spec §4.D — note this is a plain
// exact-or-wildcard match on each field independently, not the
// Ifilter-masked semantics Query uses, since stored lookups never carry
// a mask).
func (s *Subscriptions) Match(srv *Server) []Lookup {
	var out []Lookup
	for _, l := range s.lookups {
		serviceOK := l.Service == 0 || l.Service == srv.Service
		instanceOK := l.Instance == 0 || l.Instance == srv.Instance
		if serviceOK && instanceOK {
			out = append(out, l)
		}
	}
	return out
}

// Len reports the number of outstanding subscriptions, for metrics.
func (s *Subscriptions) Len() int {
	return len(s.lookups)
}
