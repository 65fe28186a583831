// Package writer implements the producer-facing façade and the writer
// worker behind it: Instance owns the handshake, the staging buffer, and
// the currently open storage file, and is the single entry point a
// producer goroutine drives through Open, Write, Close, and Finalize.
package writer

import (
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jbigot/ah5go/errorreporter"
	"github.com/jbigot/ah5go/errors"
	"github.com/jbigot/ah5go/log"
	"github.com/jbigot/ah5go/slicecopy"
	"github.com/jbigot/ah5go/stage"
	"github.com/jbigot/ah5go/storage"
	"github.com/jbigot/ah5go/writequeue"
)

// MaxRank is the largest rank a Write Record may carry.
const MaxRank = 7

// Instance is the unit of ownership: the handshake, the worker, the
// command list, the staging buffer, the open file handle, and the logging
// sink configuration. Create one with New, NewMem, or NewFile; destroy it
// with Finalize. Not safe for concurrent use by more than one producer
// goroutine, matching the single-producer-thread model.
type Instance struct {
	lib storage.Library
	buf stage.Buffer
	q   *writequeue.Queue
	log *log.Sink

	cfgMu         sync.Mutex
	parallelCopy  bool
	scalarAsArray bool
	surfaceErrors bool
	session       *writequeue.Session
	openFile      storage.FileHandle

	fatal  errorreporter.T
	worker *errgroup.Group
}

// New returns an Instance with dynamic (growable) staging, the default
// configuration of the façade design: verbosity warning, scalar
// promotion on, parallel copy on.
func New(lib storage.Library, opts ...Option) *Instance {
	return newInstance(lib, stage.NewDynamic(), opts...)
}

// NewMem returns an Instance with fixed-memory staging. A nil buf
// allocates a new region of capBytes; a non-nil buf is used as-is and
// must have at least capBytes of capacity. A zero capBytes means
// growable, matching NewFile's handling of the same contract.
func NewMem(lib storage.Library, buf []byte, capBytes int, opts ...Option) *Instance {
	return newInstance(lib, stage.NewFixed(buf, capBytes), opts...)
}

// NewFile returns an Instance with mapped-file staging, backed by a file
// created in dir. A zero capBytes means growable.
func NewFile(lib storage.Library, dir string, capBytes int, opts ...Option) (*Instance, error) {
	b, err := stage.NewMapped(dir, capBytes)
	if err != nil {
		return nil, err
	}
	return newInstance(lib, b, opts...), nil
}

func newInstance(lib storage.Library, buf stage.Buffer, opts ...Option) *Instance {
	inst := &Instance{
		lib:           lib,
		buf:           buf,
		q:             writequeue.New(),
		log:           log.New(),
		parallelCopy:  true,
		scalarAsArray: true,
	}
	for _, opt := range opts {
		opt(inst)
	}
	g := &errgroup.Group{}
	g.Go(inst.runWorker)
	inst.worker = g
	return inst
}

// OpenFile returns the storage.FileHandle for the currently open file, or
// nil if none is open. It exists for callers that want to reach an
// implementation-specific capability on the handle — storage/native's
// per-file session id, for instance — that the opaque storage.Library
// interface does not itself expose.
func (inst *Instance) OpenFile() storage.FileHandle {
	inst.cfgMu.Lock()
	defer inst.cfgMu.Unlock()
	return inst.openFile
}

// SetLogLevel changes the logging verbosity threshold.
func (inst *Instance) SetLogLevel(level log.Level) { inst.log.SetLevel(level) }

// SetLogFile routes logging to path, opened for append, creating it if
// necessary. The Instance takes ownership and closes it at Finalize.
func (inst *Instance) SetLogFile(path string) error { return inst.log.SetFile(path) }

// SetLogStream routes logging to an already-open stream.
func (inst *Instance) SetLogStream(w io.Writer, keepOpen bool) { inst.log.SetStream(w, keepOpen) }

// SetLogFD routes logging to an open file descriptor.
func (inst *Instance) SetLogFD(fd uintptr, keepOpen bool) { inst.log.SetFD(fd, keepOpen) }

// SetParallelCopy toggles the slice copier's parallelism.
func (inst *Instance) SetParallelCopy(on bool) {
	inst.cfgMu.Lock()
	inst.parallelCopy = on
	inst.cfgMu.Unlock()
}

// SetScalarAsArray toggles rank-0 scalar promotion.
func (inst *Instance) SetScalarAsArray(on bool) {
	inst.cfgMu.Lock()
	inst.scalarAsArray = on
	inst.cfgMu.Unlock()
}

// Open blocks until the worker is idle, then asks the storage library to
// create name and begins a new command list bound to it. It fails with
// Invalid if a file is already open.
func (inst *Instance) Open(name string) error {
	if name == "" {
		return errors.E(errors.Invalid, "writer: empty file name")
	}
	inst.cfgMu.Lock()
	alreadyOpen := inst.session != nil
	inst.cfgMu.Unlock()
	if alreadyOpen {
		return errors.E(errors.Invalid, "writer: Open called while a file is already open")
	}
	session, err := inst.q.Open(name, nil)
	if err != nil {
		return err
	}
	if inst.surfaceErrors {
		if err := inst.fatal.Err(); err != nil {
			session.Abort()
			return errors.E(errors.Storage, "writer: a previous file failed to write", err)
		}
	}
	file, err := inst.lib.CreateFile(name)
	if err != nil {
		session.Abort()
		return errors.E(errors.Storage, "writer: create file "+name, err)
	}
	session.SetContext(file)

	inst.cfgMu.Lock()
	inst.session = session
	inst.openFile = file
	inst.cfgMu.Unlock()
	inst.log.Statusf("opened %s", name)
	return nil
}

// Write appends a write record to the currently open command list. It does
// not copy bulk data; data must remain valid and unmodified until the
// matching Close returns.
func (inst *Instance) Write(name string, data []byte, rank int, dims, lbounds, ubounds []int, kind storage.ElemKind) error {
	inst.cfgMu.Lock()
	session := inst.session
	scalarAsArray := inst.scalarAsArray
	inst.cfgMu.Unlock()
	if session == nil {
		return errors.E(errors.Invalid, "writer: Write called without an open file")
	}
	if name == "" {
		return errors.E(errors.Invalid, "writer: empty dataset name")
	}
	if rank > MaxRank {
		return errors.E(errors.Invalid, "writer: rank exceeds MaxRank")
	}
	if rank == 0 && scalarAsArray {
		rank = 1
		dims = []int{1}
		lbounds = []int{0}
		ubounds = []int{1}
	}
	if len(dims) != rank || len(lbounds) != rank || len(ubounds) != rank {
		return errors.E(errors.Invalid, "writer: bounds length does not match rank")
	}
	for d := 0; d < rank; d++ {
		if lbounds[d] < 0 || lbounds[d] > ubounds[d] || ubounds[d] > dims[d] {
			return errors.E(errors.Invalid, "writer: lbounds/ubounds/dims out of range")
		}
	}
	typeID, err := inst.lib.LookupType(kind)
	if err != nil {
		return errors.E(errors.Invalid, "writer: unknown element kind", err)
	}

	session.Write(name, data, rank, cloneInts(dims), cloneInts(lbounds), cloneInts(ubounds), typeID)
	return nil
}

// Close snapshots every pending record's bytes into the staging buffer
// (falling back to a synchronous write for any record the buffer cannot
// hold), then hands the command list to the worker and returns. Records
// written synchronously reach the file before the staged records the
// worker writes afterwards, so on overflow the file's dataset order is not
// the order of the Write calls.
func (inst *Instance) Close() error {
	inst.cfgMu.Lock()
	session := inst.session
	file := inst.openFile
	parallelCopy := inst.parallelCopy
	inst.cfgMu.Unlock()
	if session == nil {
		return errors.E(errors.Invalid, "writer: Close called without an open file")
	}

	refs := session.StageAll()
	elemSizes := make([]int, len(refs))
	byteSizes := make([]int, len(refs))
	total := 0
	for i, ref := range refs {
		elemSize, err := inst.lib.TypeSize(ref.TypeID())
		if err != nil {
			return errors.E(errors.Invalid, "writer: unknown type for "+ref.Name(), err)
		}
		elemSizes[i] = elemSize
		n := elemSize
		for _, e := range extentsOf(ref) {
			n *= e
		}
		byteSizes[i] = n
		total += n
	}

	if _, err := inst.buf.EnsureCapacity(total); err != nil {
		session.Close()
		return err
	}
	inst.buf.Reset()

	for i, ref := range refs {
		n := byteSizes[i]
		if inst.buf.Remaining() >= n {
			dst := inst.buf.Take(n)
			if ref.Rank() == 0 {
				copy(dst, ref.Data()[:n])
			} else {
				slicecopy.Copy(dst, ref.Data(), elemSizes[i], ref.Dims(), ref.LBounds(), ref.UBounds(), parallelCopy)
			}
			ext := extentsOf(ref)
			session.Write(ref.Name(), dst, ref.Rank(), ext, make([]int, len(ext)), ext, ref.TypeID())
			continue
		}
		if err := inst.writeSynchronous(file, ref, elemSizes[i]); err != nil {
			session.Close()
			return errors.E(errors.StagingOverflow, "writer: synchronous fallback failed for "+ref.Name(), err)
		}
		inst.log.Debugf("staging buffer exhausted, wrote %s synchronously (%d bytes)", ref.Name(), n)
	}

	session.Close()
	inst.cfgMu.Lock()
	inst.session = nil
	inst.openFile = nil
	inst.cfgMu.Unlock()
	return nil
}

// writeSynchronous writes a record directly against the still-open file
// handle on the producer thread, for the staging-overflow fallback.
func (inst *Instance) writeSynchronous(file storage.FileHandle, ref writequeue.RecordRef, elemSize int) (err error) {
	ext := extentsOf(ref)
	n := elemSize
	for _, e := range ext {
		n *= e
	}
	tmp := make([]byte, n)
	if ref.Rank() == 0 {
		copy(tmp, ref.Data()[:n])
	} else {
		slicecopy.Copy(tmp, ref.Data(), elemSize, ref.Dims(), ref.LBounds(), ref.UBounds(), false)
	}

	space, err := inst.lib.CreateDataspace(ref.Rank(), ext)
	if err != nil {
		return err
	}
	defer errors.CleanUp(func() error { return inst.lib.CloseDataspace(space) }, &err)
	pl, err := inst.lib.CreatePropertyList()
	if err != nil {
		return err
	}
	defer errors.CleanUp(func() error { return inst.lib.ClosePropertyList(pl) }, &err)
	if err := inst.lib.SetLayoutContiguous(pl); err != nil {
		return err
	}
	dset, err := inst.lib.CreateDataset(file, ref.Name(), ref.TypeID(), space, pl)
	if err != nil {
		return err
	}
	defer errors.CleanUp(func() error { return inst.lib.CloseDataset(dset) }, &err)
	return inst.lib.WriteDataset(dset, ref.TypeID(), tmp)
}

// Finalize waits for the worker to become idle, stops it, joins it, and
// closes the logging sink if this Instance owns it. It fails with Invalid
// if a file is still open.
func (inst *Instance) Finalize() error {
	inst.cfgMu.Lock()
	open := inst.session != nil
	inst.cfgMu.Unlock()
	if open {
		return errors.E(errors.Invalid, "writer: Finalize called with a file still open")
	}
	inst.q.Terminate()
	if err := inst.worker.Wait(); err != nil {
		return errors.E(errors.Internal, "writer: worker goroutine failed", err)
	}
	if err := inst.log.Close(); err != nil {
		return errors.E(errors.Internal, "writer: close log sink", err)
	}
	if inst.surfaceErrors {
		if err := inst.fatal.Err(); err != nil {
			return errors.E(errors.Storage, "writer: a file failed to write during this session", err)
		}
	}
	return nil
}

func extentsOf(ref writequeue.RecordRef) []int {
	r := ref.Rank()
	ext := make([]int, r)
	ub, lb := ref.UBounds(), ref.LBounds()
	for d := 0; d < r; d++ {
		ext[d] = ub[d] - lb[d]
	}
	return ext
}

func cloneInts(s []int) []int {
	if s == nil {
		return nil
	}
	return append([]int(nil), s...)
}
