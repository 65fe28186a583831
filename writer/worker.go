package writer

import (
	"os"

	"github.com/jbigot/ah5go/storage"
	"github.com/jbigot/ah5go/writequeue"
)

// runWorker is the single writer worker goroutine: it drains sealed
// batches from the handshake queue and materialises each one against the
// storage library, one dataset write per pending record, then closes the
// file and returns the queue to idle. It exits when Drain reports the
// queue is terminating with nothing left to drain.
func (inst *Instance) runWorker() error {
	for {
		batch, ok := inst.q.Drain()
		if !ok {
			return nil
		}
		if err := inst.writeBatch(batch); err != nil {
			inst.handleFatal(err)
		}
		inst.q.Done()
	}
}

func (inst *Instance) writeBatch(batch *writequeue.Batch) error {
	file, ok := batch.Context.(storage.FileHandle)
	if !ok || file == nil {
		return nil
	}
	werr := batch.Each(func(name string, data []byte, rank int, dims, lbounds, ubounds []int, typeID interface{}) error {
		return inst.writeOneRecord(file, name, data, rank, dims, typeID)
	})
	cerr := inst.lib.CloseFile(file)
	if werr != nil {
		return werr
	}
	return cerr
}

func (inst *Instance) writeOneRecord(file storage.FileHandle, name string, data []byte, rank int, dims []int, typeID interface{}) error {
	space, err := inst.lib.CreateDataspace(rank, dims)
	if err != nil {
		return err
	}
	defer inst.lib.CloseDataspace(space)
	pl, err := inst.lib.CreatePropertyList()
	if err != nil {
		return err
	}
	defer inst.lib.ClosePropertyList(pl)
	if err := inst.lib.SetLayoutContiguous(pl); err != nil {
		return err
	}
	dset, err := inst.lib.CreateDataset(file, name, typeID, space, pl)
	if err != nil {
		return err
	}
	defer inst.lib.CloseDataset(dset)
	return inst.lib.WriteDataset(dset, typeID, data)
}

// handleFatal applies the worker's storage-failure policy: by default the
// process aborts, matching an HPC checkpoint writer's inability to make
// progress once the backing storage has failed; WithSurfacedErrors trades
// that for a recorded error the next Open call returns instead.
func (inst *Instance) handleFatal(err error) {
	inst.cfgMu.Lock()
	surfaced := inst.surfaceErrors
	inst.cfgMu.Unlock()
	inst.log.Errorf("storage write failed: %v", err)
	if surfaced {
		inst.fatal.Set(err)
		return
	}
	os.Exit(1)
}
