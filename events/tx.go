package events

// Tx is an open unit of work on the bus. Facts recorded by anyone
// before the outermost Tx closes land in the same flushed Record.
type Tx struct {
	bus *Bus
}

// Close leaves the unit of work. The second and later Closes of one
// Tx do nothing. The Close leaving the outermost level flushes the
// accumulated record, if any, and returns the aggregated subscriber
// error of the dispatch.
func (t *Tx) Close() error {
	if t.bus == nil {
		return nil
	}
	b := t.bus
	t.bus = nil
	return b.leave()
}
