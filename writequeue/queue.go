// Package writequeue implements the handshake between the producer and the
// writer worker: a mutex/condition-variable protocol with three observable
// worker states (idle, busy, terminating) guarding a FIFO command list of
// pending array writes bounded by a single open marker and a single close
// marker, grounded on the sync.Cond-based producer/consumer pattern of
// github.com/grailbio/base/syncqueue.
//
// The original design has the producer literally hold the handshake mutex
// across Open, every Write, and Close. A Go sync.Mutex is not meant to be
// acquired in one call and released in another — go vet's lock-copy checks
// and most style guides treat that as a misuse pattern — so the same
// session-level exclusion is expressed here as a *Session value returned by
// Open and consumed by Write and Close. The mutex is still held internally
// by the Queue for the whole session; callers just never see it directly.
package writequeue

import (
	"sync"

	"github.com/jbigot/ah5go/errors"
)

// Batch is the sealed command list handed to the worker by Drain: a file
// name and the FIFO list of records to write into it, in order.
type Batch struct {
	FileName string
	// Context is whatever value Open was given for this session (the
	// already-open storage file handle, in this module's use), carried
	// through to the worker without any extra synchronization.
	Context interface{}
	records *list
}

// Len returns the number of pending records in the batch.
func (b *Batch) Len() int { return b.records.len() }

// Each calls fn for every record in the batch, in FIFO order, removing it
// from the batch as it is visited. It stops and returns fn's error, if any,
// leaving the remaining records in the batch.
func (b *Batch) Each(fn func(name string, data []byte, rank int, dims, lbounds, ubounds []int, typeID interface{}) error) error {
	for b.records.head != nil {
		r := b.records.popFront()
		if err := fn(r.name, r.dataPtr, r.rank, r.dims, r.lbounds, r.ubounds, r.typeID); err != nil {
			return err
		}
	}
	return nil
}

// Queue is the shared handshake state between one producer and one worker.
// The zero value is not ready for use; construct one with New.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	idle        bool
	sealed      bool
	terminating bool
	fileName    string
	context     interface{}
	pending     *list
}

// New returns an idle Queue.
func New() *Queue {
	q := &Queue{idle: true}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Session represents a held Open...Close round. It is not safe for
// concurrent use — exactly like the single producer thread it stands in
// for.
type Session struct {
	q      *Queue
	name   string
	closed bool
}

// Open blocks until the worker has finished the previous file (or the queue
// is terminating), then begins a new session named name. context is
// carried through to the worker unchanged as the sealed Batch's Context
// field (the already-open storage file handle, in this module's use). The
// returned Session must be closed with Close or Abort exactly once.
func (q *Queue) Open(name string, context interface{}) (*Session, error) {
	q.mu.Lock()
	for !q.idle && !q.terminating {
		q.cond.Wait()
	}
	if q.terminating {
		q.mu.Unlock()
		return nil, errors.E(errors.Internal, "writequeue: queue is terminating")
	}
	q.idle = false
	q.sealed = false
	q.fileName = name
	q.context = context
	q.pending = &list{}
	return &Session{q: q, name: name}, nil
}

// Name returns the session's file name.
func (s *Session) Name() string { return s.name }

// SetContext replaces the context value passed to Open, for callers that
// only learn it after acquiring the session (the storage library's
// create-file call happens after Open, in this module's use).
func (s *Session) SetContext(context interface{}) { s.q.context = context }

// Write appends a record to the session's pending list. It does not
// acquire the handshake mutex: Open already holds it for the session's
// lifetime.
func (s *Session) Write(name string, data []byte, rank int, dims, lbounds, ubounds []int, typeID interface{}) {
	s.q.pending.pushBack(&record{
		name:    name,
		dataPtr: data,
		rank:    rank,
		dims:    dims,
		lbounds: lbounds,
		ubounds: ubounds,
		typeID:  typeID,
	})
}

// StageAll removes every pending record from the session, in FIFO order,
// for the staging pass: the caller copies each record's bytes into the
// staging buffer and re-appends a normalised record with Write, or, on
// staging-buffer exhaustion, writes it synchronously and drops it instead
// (it is never handed to the worker).
func (s *Session) StageAll() []RecordRef {
	out := make([]RecordRef, 0, s.q.pending.len())
	for {
		r := s.q.pending.popFront()
		if r == nil {
			break
		}
		out = append(out, RecordRef{r})
	}
	return out
}

// RecordRef is a snapshot of one record popped by StageAll.
type RecordRef struct{ r *record }

// Name, Rank, Dims, LBounds, UBounds, TypeID, Data expose a record's fields
// for the staging pass.
func (rr RecordRef) Name() string        { return rr.r.name }
func (rr RecordRef) Rank() int           { return rr.r.rank }
func (rr RecordRef) Dims() []int         { return rr.r.dims }
func (rr RecordRef) LBounds() []int      { return rr.r.lbounds }
func (rr RecordRef) UBounds() []int      { return rr.r.ubounds }
func (rr RecordRef) TypeID() interface{} { return rr.r.typeID }
func (rr RecordRef) Data() []byte        { return rr.r.dataPtr }

// Pending returns the number of records still queued in the session.
func (s *Session) Pending() int { return s.q.pending.len() }

// Close seals the session, handing its records to the worker and waking it.
// It releases the handshake mutex acquired by Open.
func (s *Session) Close() {
	if s.closed {
		panic("writequeue: Session closed twice")
	}
	s.closed = true
	s.q.sealed = true
	// Broadcast, not Signal: a producer blocked in the next Open and the
	// worker blocked in Drain can be waiting on this same condition
	// variable at once, and Signal could wake the wrong one, stranding
	// the other until some unrelated event retries it.
	s.q.cond.Broadcast()
	s.q.mu.Unlock()
}

// Abort releases the session without sealing a batch, returning the queue
// directly to idle, as if Open had never been called. Used when the
// caller fails before any records are staged (the storage library's
// create-file call, for instance) and there is nothing for the worker to
// do.
func (s *Session) Abort() {
	if s.closed {
		panic("writequeue: Session closed twice")
	}
	s.closed = true
	s.q.idle = true
	s.q.sealed = false
	s.q.pending = nil
	s.q.context = nil
	s.q.cond.Broadcast()
	s.q.mu.Unlock()
}

// Drain blocks until a sealed batch is available or the queue is
// terminating with no pending session, matching the worker's wait-then-act
// loop of the handshake design. ok is false when the worker should exit.
func (q *Queue) Drain() (batch *Batch, ok bool) {
	q.mu.Lock()
	for !q.sealed && !q.terminating {
		q.cond.Wait()
	}
	if !q.sealed {
		q.mu.Unlock()
		return nil, false
	}
	b := &Batch{FileName: q.fileName, Context: q.context, records: q.pending}
	q.mu.Unlock()
	return b, true
}

// Done marks the current file's batch fully drained, returning the queue to
// idle and waking any producer blocked in Open or Terminate.
func (q *Queue) Done() {
	q.mu.Lock()
	q.idle = true
	q.sealed = false
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Terminate waits for the queue to become idle, then marks it terminating
// and wakes the worker so its next Drain returns ok=false.
func (q *Queue) Terminate() {
	q.mu.Lock()
	for !q.idle {
		q.cond.Wait()
	}
	q.terminating = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
