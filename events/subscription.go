package events

// Callback receives every flushed Record containing at least one
// value type the subscriber asked for. The whole record is passed,
// including value types the subscriber did not ask for; callbacks
// must tolerate the extra sections. Callbacks run outside all bus and
// cache locks.
type Callback func(Record) error

type subscriber struct {
	id     uint64
	cb     Callback
	types  map[string]struct{} // nil means every value type
	active bool
}

// wants reports whether rec contains a value type of interest.
func (s *subscriber) wants(rec Record) bool {
	if s.types == nil {
		return true
	}
	for vt := range s.types {
		if _, ok := rec[vt]; ok {
			return true
		}
	}
	return false
}

// Subscription is the caller's handle on one registered callback.
// Deactivate pauses delivery keeping the registration; Unsubscribe
// forgets it for good. All methods are idempotent and safe after
// Unsubscribe.
type Subscription struct {
	bus *Bus
	id  uint64
}

// Unsubscribe removes the callback permanently.
func (s *Subscription) Unsubscribe() { s.bus.unsubscribe(s.id) }

// Deactivate pauses delivery until Activate.
func (s *Subscription) Deactivate() { s.bus.setActive(s.id, false) }

// Activate resumes delivery.
func (s *Subscription) Activate() { s.bus.setActive(s.id, true) }

// IsActive reports whether records are currently delivered.
func (s *Subscription) IsActive() bool { return s.bus.isActive(s.id) }

// IsRegistered reports whether the subscription was not yet
// unsubscribed.
func (s *Subscription) IsRegistered() bool { return s.bus.isRegistered(s.id) }
