// Package storage defines the external hierarchical-data library
// collaborator: the out-of-scope interface the writer worker drives to
// materialise a file, matching the create-file / create-dataspace /
// create-dataset / write-dataset / close primitives of the external
// interfaces design. storage/native ships a dependency-free implementation
// so the test suite and the example driver run without a cgo HDF5 binding;
// storage/hdf5 documents the real binding points for an operator who wants
// one.
package storage

// FileHandle, DataspaceHandle, PropertyListHandle, DatasetHandle and TypeID
// are opaque handles issued by a Library implementation, standing in for
// HDF5's hid_t.
type (
	FileHandle         interface{}
	DataspaceHandle    interface{}
	PropertyListHandle interface{}
	DatasetHandle      interface{}
	TypeID             interface{}
)

// ElemKind names a canonical element type a Library is expected to support,
// independent of any implementation's own internal type representation.
type ElemKind int

const (
	Float64 ElemKind = iota
	Float32
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
)

// Library is the set of primitives the worker needs from the external
// storage collaborator, one-for-one with the external interfaces design's
// element type interface.
type Library interface {
	// LookupType resolves a canonical element kind to this library's own
	// opaque type handle.
	LookupType(kind ElemKind) (TypeID, error)
	// TypeSize returns the byte size of one element of the given type.
	TypeSize(t TypeID) (int, error)

	CreateFile(path string) (FileHandle, error)
	CreateDataspace(rank int, dims []int) (DataspaceHandle, error)
	CreatePropertyList() (PropertyListHandle, error)
	SetLayoutContiguous(pl PropertyListHandle) error
	CreateDataset(file FileHandle, name string, typeID TypeID, space DataspaceHandle, pl PropertyListHandle) (DatasetHandle, error)
	WriteDataset(dset DatasetHandle, typeID TypeID, buf []byte) error

	CloseDataset(DatasetHandle) error
	ClosePropertyList(PropertyListHandle) error
	CloseDataspace(DataspaceHandle) error
	CloseFile(FileHandle) error
}
