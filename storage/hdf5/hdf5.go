//go:build hdf5

// Package hdf5 documents the real binding points for storage.Library
// against libhdf5, matching the element type interface of the external
// interfaces design one primitive at a time. It is intentionally
// unexercised scaffold: building it requires a system libhdf5 and the
// "hdf5" build tag, so the default build of this module carries zero cgo
// and no C compiler dependency. An operator who wants a real HDF5 backend
// fills in the cgo calls each method below documents; storage/native is
// the backend every test and the example driver actually exercise.
package hdf5

/*
#cgo LDFLAGS: -lhdf5
#include <hdf5.h>
*/
import "C"

import (
	"unsafe"

	"github.com/jbigot/ah5go/errors"
	"github.com/jbigot/ah5go/storage"
)

type fileHandle C.hid_t
type dataspaceHandle C.hid_t
type propertyListHandle C.hid_t
type datasetHandle C.hid_t
type typeID C.hid_t

// Library implements storage.Library against a real libhdf5, linked via
// cgo. Build with -tags hdf5.
type Library struct{}

// New returns an hdf5-backed Library.
func New() *Library { return &Library{} }

func (l *Library) LookupType(kind storage.ElemKind) (storage.TypeID, error) {
	switch kind {
	case storage.Float64:
		return typeID(C.H5T_NATIVE_DOUBLE), nil
	case storage.Float32:
		return typeID(C.H5T_NATIVE_FLOAT), nil
	case storage.Int8:
		return typeID(C.H5T_NATIVE_INT8), nil
	case storage.Int16:
		return typeID(C.H5T_NATIVE_INT16), nil
	case storage.Int32:
		return typeID(C.H5T_NATIVE_INT32), nil
	case storage.Int64:
		return typeID(C.H5T_NATIVE_INT64), nil
	case storage.Uint8:
		return typeID(C.H5T_NATIVE_UINT8), nil
	case storage.Uint16:
		return typeID(C.H5T_NATIVE_UINT16), nil
	case storage.Uint32:
		return typeID(C.H5T_NATIVE_UINT32), nil
	case storage.Uint64:
		return typeID(C.H5T_NATIVE_UINT64), nil
	default:
		return nil, errors.E(errors.Invalid, "hdf5: unknown element kind")
	}
}

func (l *Library) TypeSize(t storage.TypeID) (int, error) {
	id, ok := t.(typeID)
	if !ok {
		return 0, errors.E(errors.Invalid, "hdf5: foreign type handle")
	}
	n := C.H5Tget_size(C.hid_t(id))
	if n == 0 {
		return 0, errors.E(errors.Storage, "hdf5: H5Tget_size failed")
	}
	return int(n), nil
}

func (l *Library) CreateFile(path string) (storage.FileHandle, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	id := C.H5Fcreate(cpath, C.H5F_ACC_TRUNC, C.H5P_DEFAULT, C.H5P_DEFAULT)
	if id < 0 {
		return nil, errors.E(errors.Storage, "hdf5: H5Fcreate failed")
	}
	return fileHandle(id), nil
}

func (l *Library) CreateDataspace(rank int, dims []int) (storage.DataspaceHandle, error) {
	cdims := make([]C.hsize_t, rank)
	for i, d := range dims {
		cdims[i] = C.hsize_t(d)
	}
	var dimsPtr *C.hsize_t
	if rank > 0 {
		dimsPtr = &cdims[0]
	}
	id := C.H5Screate_simple(C.int(rank), dimsPtr, nil)
	if id < 0 {
		return nil, errors.E(errors.Storage, "hdf5: H5Screate_simple failed")
	}
	return dataspaceHandle(id), nil
}

func (l *Library) CreatePropertyList() (storage.PropertyListHandle, error) {
	id := C.H5Pcreate(C.H5P_DATASET_CREATE)
	if id < 0 {
		return nil, errors.E(errors.Storage, "hdf5: H5Pcreate failed")
	}
	return propertyListHandle(id), nil
}

func (l *Library) SetLayoutContiguous(pl storage.PropertyListHandle) error {
	id, ok := pl.(propertyListHandle)
	if !ok {
		return errors.E(errors.Invalid, "hdf5: foreign property list handle")
	}
	if C.H5Pset_layout(C.hid_t(id), C.H5D_CONTIGUOUS) < 0 {
		return errors.E(errors.Storage, "hdf5: H5Pset_layout failed")
	}
	return nil
}

func (l *Library) CreateDataset(file storage.FileHandle, name string, t storage.TypeID, space storage.DataspaceHandle, pl storage.PropertyListHandle) (storage.DatasetHandle, error) {
	f, ok := file.(fileHandle)
	if !ok {
		return nil, errors.E(errors.Invalid, "hdf5: foreign file handle")
	}
	ty, ok := t.(typeID)
	if !ok {
		return nil, errors.E(errors.Invalid, "hdf5: foreign type handle")
	}
	sp, ok := space.(dataspaceHandle)
	if !ok {
		return nil, errors.E(errors.Invalid, "hdf5: foreign dataspace handle")
	}
	plh, ok := pl.(propertyListHandle)
	if !ok {
		return nil, errors.E(errors.Invalid, "hdf5: foreign property list handle")
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	id := C.H5Dcreate2(C.hid_t(f), cname, C.hid_t(ty), C.hid_t(sp), C.H5P_DEFAULT, C.hid_t(plh), C.H5P_DEFAULT)
	if id < 0 {
		return nil, errors.E(errors.Storage, "hdf5: H5Dcreate2 failed")
	}
	return datasetHandle(id), nil
}

func (l *Library) WriteDataset(dset storage.DatasetHandle, t storage.TypeID, buf []byte) error {
	d, ok := dset.(datasetHandle)
	if !ok {
		return errors.E(errors.Invalid, "hdf5: foreign dataset handle")
	}
	ty, ok := t.(typeID)
	if !ok {
		return errors.E(errors.Invalid, "hdf5: foreign type handle")
	}
	var ptr unsafe.Pointer
	if len(buf) > 0 {
		ptr = unsafe.Pointer(&buf[0])
	}
	if C.H5Dwrite(C.hid_t(d), C.hid_t(ty), C.H5S_ALL, C.H5S_ALL, C.H5P_DEFAULT, ptr) < 0 {
		return errors.E(errors.Storage, "hdf5: H5Dwrite failed")
	}
	return nil
}

func (l *Library) CloseDataset(dset storage.DatasetHandle) error {
	d, ok := dset.(datasetHandle)
	if !ok {
		return errors.E(errors.Invalid, "hdf5: foreign dataset handle")
	}
	if C.H5Dclose(C.hid_t(d)) < 0 {
		return errors.E(errors.Storage, "hdf5: H5Dclose failed")
	}
	return nil
}

func (l *Library) ClosePropertyList(pl storage.PropertyListHandle) error {
	id, ok := pl.(propertyListHandle)
	if !ok {
		return errors.E(errors.Invalid, "hdf5: foreign property list handle")
	}
	if C.H5Pclose(C.hid_t(id)) < 0 {
		return errors.E(errors.Storage, "hdf5: H5Pclose failed")
	}
	return nil
}

func (l *Library) CloseDataspace(space storage.DataspaceHandle) error {
	id, ok := space.(dataspaceHandle)
	if !ok {
		return errors.E(errors.Invalid, "hdf5: foreign dataspace handle")
	}
	if C.H5Sclose(C.hid_t(id)) < 0 {
		return errors.E(errors.Storage, "hdf5: H5Sclose failed")
	}
	return nil
}

func (l *Library) CloseFile(file storage.FileHandle) error {
	f, ok := file.(fileHandle)
	if !ok {
		return errors.E(errors.Invalid, "hdf5: foreign file handle")
	}
	if C.H5Fclose(C.hid_t(f)) < 0 {
		return errors.E(errors.Storage, "hdf5: H5Fclose failed")
	}
	return nil
}
