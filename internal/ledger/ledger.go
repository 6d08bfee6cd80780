// Package ledger tracks command buffer retirement.
//
// Every command buffer recorded by a context gets a monotonically increasing
// ID. Native objects remember the last ID that referenced them; destroying
// such an object is deferred until the ledger has seen that ID retire.
// Command buffers on one queue complete in submission order, so retirement
// is tracked as a single watermark.
package ledger

// ID identifies a command buffer. Zero is never assigned and is always
// retired, so objects that were never referenced can be released at once.
type ID uint64

type entry struct {
	id ID
	fn func()
}

// Ledger records the current command buffer ID, the retirement watermark and
// the destructions waiting on it. The zero value is not usable; use New.
type Ledger struct {
	current   ID
	completed ID
	deferred  []entry
}

// New returns a ledger whose first command buffer has ID 1.
func New() *Ledger {
	return &Ledger{current: 1}
}

// Current returns the ID of the command buffer being recorded.
func (l *Ledger) Current() ID { return l.current }

// Completed returns the highest retired ID.
func (l *Ledger) Completed() ID { return l.completed }

// Advance closes the current ID and returns it. Commands recorded from now on
// belong to the next ID.
func (l *Ledger) Advance() ID {
	id := l.current
	l.current++
	return id
}

// IsRetired reports whether all work up to and including id completed.
func (l *Ledger) IsRetired(id ID) bool {
	return id <= l.completed
}

// Retire moves the watermark to id and runs every deferred function whose ID
// is now retired, in the order they were deferred. It returns the number of
// functions run. Moving the watermark backwards is ignored.
func (l *Ledger) Retire(id ID) int {
	if id >= l.current {
		id = l.current - 1
	}
	if id > l.completed {
		l.completed = id
	}

	ran := 0
	keep := l.deferred[:0]
	var ready []entry
	for _, e := range l.deferred {
		if e.id <= l.completed {
			ready = append(ready, e)
			continue
		}
		keep = append(keep, e)
	}
	for i := len(keep); i < len(l.deferred); i++ {
		l.deferred[i] = entry{}
	}
	l.deferred = keep

	for _, e := range ready {
		e.fn()
		ran++
	}
	return ran
}

// Defer schedules fn to run once id retired. If id already retired fn runs
// immediately.
func (l *Ledger) Defer(id ID, fn func()) {
	if l.IsRetired(id) {
		fn()
		return
	}
	l.deferred = append(l.deferred, entry{id: id, fn: fn})
}

// Pending returns the number of deferred functions not yet run.
func (l *Ledger) Pending() int { return len(l.deferred) }

// Drain runs every deferred function regardless of retirement. It is meant
// for teardown after the device went idle.
func (l *Ledger) Drain() int {
	pending := l.deferred
	l.deferred = nil
	l.completed = l.current - 1
	for _, e := range pending {
		e.fn()
	}
	return len(pending)
}

// Resource is embedded by objects that can be referenced from command
// buffers.
type Resource struct {
	lastUse ID
}

// Use records that the object is referenced by command buffer id.
func (r *Resource) Use(id ID) {
	if id > r.lastUse {
		r.lastUse = id
	}
}

// LastUse returns the last command buffer ID that referenced the object.
func (r *Resource) LastUse() ID { return r.lastUse }
