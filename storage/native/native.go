// Package native implements storage.Library against a small dependency-free
// on-disk container instead of a real HDF5 file: a magic header stamped
// with a session UUID, followed by a stream of length-prefixed named
// records, one per dataset, each carrying its own rank/dims/type-size so
// the file is self-describing without any external schema. It is grounded
// on the length-prefixed record framing of
// github.com/grailbio/base/recordio, trimmed to a single unindexed,
// forward-only stream: this container has no seek/resume use case, only
// the byte-identical round-trip the writer's producer contract promises.
package native

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/jbigot/ah5go/errors"
	"github.com/jbigot/ah5go/storage"
)

// Magic identifies a native container file.
var Magic = [8]byte{'A', 'H', '5', 'G', 'O', 'N', 'A', 'T'}

// Version is the container format version written by this package.
const Version uint32 = 1

var elemSizes = map[storage.ElemKind]int{
	storage.Float64: 8,
	storage.Float32: 4,
	storage.Int8:    1,
	storage.Int16:   2,
	storage.Int32:   4,
	storage.Int64:   8,
	storage.Uint8:   1,
	storage.Uint16:  2,
	storage.Uint32:  4,
	storage.Uint64:  8,
}

type nativeType struct {
	kind storage.ElemKind
	size int
}

type fileHandle struct {
	f        *os.File
	sid      uuid.UUID
	compress bool
}

type dataspaceHandle struct{ dims []int }

type propertyListHandle struct{}

type datasetHandle struct {
	file *fileHandle
	name string
	dims []int
}

// Library implements storage.Library as the dependency-free native
// container described in the package doc.
type Library struct {
	// Compress enables per-dataset zstd compression of record payloads.
	// Off by default, so byte-identical round-trip holds untouched.
	Compress bool
}

// New returns a Library with compression disabled.
func New() *Library { return &Library{} }

// LastSessionID returns the session UUID stamped in this file's header,
// for callers (the stencil driver) that want to
// correlate log lines with a run.
func (fh *fileHandle) LastSessionID() uuid.UUID { return fh.sid }

func (l *Library) LookupType(kind storage.ElemKind) (storage.TypeID, error) {
	size, ok := elemSizes[kind]
	if !ok {
		return nil, errors.E(errors.Invalid, "native: unknown element kind")
	}
	return &nativeType{kind: kind, size: size}, nil
}

func (l *Library) TypeSize(t storage.TypeID) (int, error) {
	nt, ok := t.(*nativeType)
	if !ok {
		return 0, errors.E(errors.Invalid, "native: foreign type handle")
	}
	return nt.size, nil
}

func (l *Library) CreateFile(path string) (storage.FileHandle, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.E(errors.Storage, "native: create file", err)
	}
	sid := uuid.New()
	var hdr bytes.Buffer
	hdr.Write(Magic[:])
	binary.Write(&hdr, binary.LittleEndian, Version)
	hdr.Write(sid[:])
	if _, err := f.Write(hdr.Bytes()); err != nil {
		f.Close()
		return nil, errors.E(errors.Storage, "native: write header", err)
	}
	return &fileHandle{f: f, sid: sid, compress: l.Compress}, nil
}

func (l *Library) CreateDataspace(rank int, dims []int) (storage.DataspaceHandle, error) {
	d := make([]int, rank)
	copy(d, dims)
	return &dataspaceHandle{dims: d}, nil
}

func (l *Library) CreatePropertyList() (storage.PropertyListHandle, error) {
	return &propertyListHandle{}, nil
}

// SetLayoutContiguous is a no-op: every dataset in the native container is
// already stored as one contiguous run of bytes.
func (l *Library) SetLayoutContiguous(storage.PropertyListHandle) error { return nil }

func (l *Library) CreateDataset(file storage.FileHandle, name string, typeID storage.TypeID, space storage.DataspaceHandle, pl storage.PropertyListHandle) (storage.DatasetHandle, error) {
	fh, ok := file.(*fileHandle)
	if !ok {
		return nil, errors.E(errors.Invalid, "native: foreign file handle")
	}
	sp, ok := space.(*dataspaceHandle)
	if !ok {
		return nil, errors.E(errors.Invalid, "native: foreign dataspace handle")
	}
	if name == "" {
		return nil, errors.E(errors.Invalid, "native: empty dataset name")
	}
	return &datasetHandle{file: fh, name: name, dims: sp.dims}, nil
}

func (l *Library) WriteDataset(dset storage.DatasetHandle, typeID storage.TypeID, buf []byte) error {
	ds, ok := dset.(*datasetHandle)
	if !ok {
		return errors.E(errors.Invalid, "native: foreign dataset handle")
	}
	nt, ok := typeID.(*nativeType)
	if !ok {
		return errors.E(errors.Invalid, "native: foreign type handle")
	}

	payload := buf
	compressed := false
	if ds.file.compress {
		var zbuf bytes.Buffer
		zw, err := zstd.NewWriter(&zbuf)
		if err != nil {
			return errors.E(errors.Storage, "native: start compression", err)
		}
		if _, err := zw.Write(buf); err != nil {
			zw.Close()
			return errors.E(errors.Storage, "native: compress dataset", err)
		}
		if err := zw.Close(); err != nil {
			return errors.E(errors.Storage, "native: finish compression", err)
		}
		payload = zbuf.Bytes()
		compressed = true
	}

	var rec bytes.Buffer
	binary.Write(&rec, binary.LittleEndian, uint32(len(ds.name)))
	rec.WriteString(ds.name)
	binary.Write(&rec, binary.LittleEndian, uint32(nt.size))
	binary.Write(&rec, binary.LittleEndian, uint32(len(ds.dims)))
	for _, d := range ds.dims {
		binary.Write(&rec, binary.LittleEndian, uint64(d))
	}
	if compressed {
		rec.WriteByte(1)
	} else {
		rec.WriteByte(0)
	}
	binary.Write(&rec, binary.LittleEndian, uint64(len(payload)))
	rec.Write(payload)

	if _, err := ds.file.f.Write(rec.Bytes()); err != nil {
		return errors.E(errors.Storage, "native: write dataset "+ds.name, err)
	}
	return nil
}

func (l *Library) CloseDataset(storage.DatasetHandle) error           { return nil }
func (l *Library) ClosePropertyList(storage.PropertyListHandle) error { return nil }
func (l *Library) CloseDataspace(storage.DataspaceHandle) error       { return nil }

func (l *Library) CloseFile(file storage.FileHandle) error {
	fh, ok := file.(*fileHandle)
	if !ok {
		return errors.E(errors.Invalid, "native: foreign file handle")
	}
	if err := fh.f.Close(); err != nil {
		return errors.E(errors.Storage, "native: close file", err)
	}
	return nil
}

// Record is one dataset read back from a native container file.
type Record struct {
	Name     string
	TypeSize int
	Dims     []int
	Data     []byte
}

// Reader reads back a native container file written by Library, for tests
// and tools that want to verify what was actually persisted.
type Reader struct {
	f         *os.File
	SessionID uuid.UUID
}

// Open opens path and validates its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(errors.Storage, "native: open file", err)
	}
	var magic [8]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, errors.E(errors.Storage, "native: read magic", err)
	}
	if magic != Magic {
		f.Close()
		return nil, errors.E(errors.Invalid, "native: not a native container file")
	}
	var version uint32
	if err := binary.Read(f, binary.LittleEndian, &version); err != nil {
		f.Close()
		return nil, errors.E(errors.Storage, "native: read version", err)
	}
	var sid [16]byte
	if _, err := io.ReadFull(f, sid[:]); err != nil {
		f.Close()
		return nil, errors.E(errors.Storage, "native: read session id", err)
	}
	id, err := uuid.FromBytes(sid[:])
	if err != nil {
		f.Close()
		return nil, errors.E(errors.Storage, "native: parse session id", err)
	}
	return &Reader{f: f, SessionID: id}, nil
}

// Next reads the next record, returning ok=false at end of file.
func (r *Reader) Next() (rec Record, ok bool, err error) {
	var nameLen uint32
	if rerr := binary.Read(r.f, binary.LittleEndian, &nameLen); rerr != nil {
		if rerr == io.EOF {
			return Record{}, false, nil
		}
		return Record{}, false, errors.E(errors.Storage, "native: read record header", rerr)
	}
	name := make([]byte, nameLen)
	if _, rerr := io.ReadFull(r.f, name); rerr != nil {
		return Record{}, false, errors.E(errors.Storage, "native: read record name", rerr)
	}
	var typeSize uint32
	if rerr := binary.Read(r.f, binary.LittleEndian, &typeSize); rerr != nil {
		return Record{}, false, errors.E(errors.Storage, "native: read type size", rerr)
	}
	var rank uint32
	if rerr := binary.Read(r.f, binary.LittleEndian, &rank); rerr != nil {
		return Record{}, false, errors.E(errors.Storage, "native: read rank", rerr)
	}
	dims := make([]int, rank)
	for i := range dims {
		var d uint64
		if rerr := binary.Read(r.f, binary.LittleEndian, &d); rerr != nil {
			return Record{}, false, errors.E(errors.Storage, "native: read dims", rerr)
		}
		dims[i] = int(d)
	}
	var compressedFlag [1]byte
	if _, rerr := io.ReadFull(r.f, compressedFlag[:]); rerr != nil {
		return Record{}, false, errors.E(errors.Storage, "native: read compression flag", rerr)
	}
	var dataLen uint64
	if rerr := binary.Read(r.f, binary.LittleEndian, &dataLen); rerr != nil {
		return Record{}, false, errors.E(errors.Storage, "native: read data length", rerr)
	}
	payload := make([]byte, dataLen)
	if _, rerr := io.ReadFull(r.f, payload); rerr != nil {
		return Record{}, false, errors.E(errors.Storage, "native: read data", rerr)
	}
	data := payload
	if compressedFlag[0] == 1 {
		zr, zerr := zstd.NewReader(bytes.NewReader(payload))
		if zerr != nil {
			return Record{}, false, errors.E(errors.Storage, "native: start decompression", zerr)
		}
		defer zr.Close()
		data, zerr = io.ReadAll(zr)
		if zerr != nil {
			return Record{}, false, errors.E(errors.Storage, "native: decompress data", zerr)
		}
	}
	return Record{Name: string(name), TypeSize: int(typeSize), Dims: dims, Data: data}, true, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
