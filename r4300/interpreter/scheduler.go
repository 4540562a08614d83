package interpreter

import (
	"sort"

	"github.com/colorfulnotion/r4300/log"
)

type EventKind uint8

const (
	EventCompare EventKind = iota // Count reached Compare
	EventDevice                   // externally scheduled callback
)

// Event is a pending action on the cycle clock.
type Event struct {
	At   uint64
	Kind EventKind
	ID   int
	Fn   func(*State)
}

// Scheduler keeps the pending events ordered by due cycle.
type Scheduler struct {
	events []Event
	nextID int
}

func (q *Scheduler) add(e Event) int {
	q.nextID++
	e.ID = q.nextID
	i := sort.Search(len(q.events), func(i int) bool { return q.events[i].At > e.At })
	q.events = append(q.events, Event{})
	copy(q.events[i+1:], q.events[i:])
	q.events[i] = e
	return e.ID
}

func (q *Scheduler) remove(match func(Event) bool) {
	out := q.events[:0]
	for _, e := range q.events {
		if !match(e) {
			out = append(out, e)
		}
	}
	q.events = out
}

// Next returns the cycle of the earliest event.
func (q *Scheduler) Next() uint64 {
	if len(q.events) == 0 {
		return ^uint64(0)
	}
	return q.events[0].At
}

// Events returns a copy of the pending events.
func (q *Scheduler) Events() []Event {
	return append([]Event(nil), q.events...)
}

// ScheduleInterrupt runs fn once Count has advanced by delay cycles. The callback
// usually raises an interrupt line with SetIP. It returns an id for Cancel.
func (s *State) ScheduleInterrupt(delay uint64, fn func(*State)) int {
	id := s.Sched.add(Event{At: s.Count + delay, Kind: EventDevice, Fn: fn})
	s.updateDeadline()
	return id
}

func (s *State) Cancel(id int) {
	s.Sched.remove(func(e Event) bool { return e.ID == id })
	s.updateDeadline()
}

// SetIP raises interrupt line ip (2..7) in Cause.
func (s *State) SetIP(ip uint) {
	s.CP0[CP0Cause] |= 1 << (8 + ip)
	s.requestCheck()
}

// ClearIP lowers interrupt line ip.
func (s *State) ClearIP(ip uint) {
	s.CP0[CP0Cause] &^= 1 << (8 + ip)
}

// scheduleCompare keeps exactly one compare event, at most 2^32 cycles ahead.
func (s *State) scheduleCompare() {
	s.Sched.remove(func(e Event) bool { return e.Kind == EventCompare })
	delta := uint64(uint32(s.CP0[CP0Compare]) - uint32(s.Count))
	if delta == 0 {
		delta = 1 << 32
	}
	s.Sched.add(Event{At: s.Count + delta, Kind: EventCompare})
	s.updateDeadline()
}

func (s *State) setCount(v uint32) {
	old := s.Count
	s.Count = old&^0xffffffff | uint64(v)
	delta := s.Count - old
	for i := range s.Sched.events {
		s.Sched.events[i].At += delta
	}
	s.scheduleCompare()
}

// requestCheck forces the next check point to evaluate pending interrupts.
func (s *State) requestCheck() {
	s.checkPending = true
	s.Deadline = 0
}

// RequestCheck makes the next check point run CheckInterrupts even if no event is due.
func (s *State) RequestCheck() { s.requestCheck() }

func (s *State) updateDeadline() {
	if s.checkPending {
		s.Deadline = 0
		return
	}
	s.Deadline = s.Sched.Next()
}

func (s *State) interruptPending() bool {
	status := s.CP0[CP0Status]
	if status&StatusIE == 0 || status&(StatusEXL|StatusERL) != 0 {
		return false
	}
	return s.CP0[CP0Cause]&status&CauseIP != 0
}

// CheckInterrupts runs due events and takes a pending enabled interrupt. It is only
// called at check points (after a transfer resolves, or after ERET) with s.PC holding
// the next instruction. It reports whether an exception was taken.
func (s *State) CheckInterrupts() bool {
	for len(s.Sched.events) > 0 && s.Sched.events[0].At <= s.Count {
		e := s.Sched.events[0]
		s.Sched.events = s.Sched.events[1:]
		switch e.Kind {
		case EventCompare:
			s.CP0[CP0Cause] |= CauseIP7
			s.Sched.add(Event{At: e.At + 1<<32, Kind: EventCompare})
			log.Trace(log.Exec, "compare interrupt", "count", s.Count)
		case EventDevice:
			if e.Fn != nil {
				e.Fn(s)
			}
		}
	}
	s.checkPending = false
	s.updateDeadline()
	if s.interruptPending() {
		s.Raise(ExcInt, s.PC, false)
		return true
	}
	return false
}

// SkipIdle advances Count across an idle loop whose iterations cost iter cycles, to
// the first iteration boundary at or past the deadline.
func (s *State) SkipIdle(iter uint64) {
	if s.Count >= s.Deadline || iter == 0 {
		return
	}
	n := (s.Deadline - s.Count + iter - 1) / iter
	s.Count += n * iter
	s.IdleSkips++
}
