// Package slicecopy implements the N-dimensional strided-to-contiguous
// slice copier: it copies a rectangular sub-block out of a row-major
// strided source array into a dense contiguous destination, optionally
// fanning the bulk byte copy out across a bounded worker pool.
package slicecopy

import (
	"sync"
	"sync/atomic"
)

// MaxCopyWorkers bounds the parallel copy's thread pool, matching the
// "implementation-defined maximum (>= 16)" of the slice copier design.
const MaxCopyWorkers = 32

// pageSize is the alignment target for partitioning a single large
// contiguous copy across workers.
const pageSize = 4096

// Copy copies the rectangular block [lbounds[0], ubounds[0)) x ... out of
// src, a row-major array of the given per-dimension extents dims, into dst
// as a dense contiguous block of extents ubounds-lbounds, also row-major.
// elemSize is the byte size of one array element. A rank-0 request (empty
// dims/lbounds/ubounds) copies elemSize bytes. If parallel is true, the
// bulk byte copy is fanned out across a bounded worker pool; dst and src
// must not overlap.
func Copy(dst, src []byte, elemSize int, dims, lbounds, ubounds []int, parallel bool) {
	rank := len(dims)
	if rank == 0 {
		copy(dst[:elemSize], src[:elemSize])
		return
	}

	full := true
	for d := 0; d < rank; d++ {
		if ubounds[d]-lbounds[d] != dims[d] {
			full = false
			break
		}
	}
	if full {
		total := elemSize
		for _, n := range dims {
			total *= n
		}
		if parallel {
			parallelMemcpy(dst[:total], src[:total])
		} else {
			copy(dst[:total], src[:total])
		}
		return
	}

	if !parallel || rank == 1 {
		copyBlock(dst, src, elemSize, dims, lbounds, ubounds, 0, 0, 0)
		return
	}
	copyOuterParallel(dst, src, elemSize, dims, lbounds, ubounds)
}

// copyBlock implements the recursive walk of the outermost remaining
// dimension: when every dimension after depth is selected in full, the
// current dimension's whole selected range is one contiguous run in both
// src and dst and is copied in a single call; otherwise it recurses index
// by index into depth+1.
func copyBlock(dst, src []byte, elemSize int, dims, lbounds, ubounds []int, depth, srcBase, dstBase int) {
	rank := len(dims)

	trailingFull := true
	srcRowBytes := elemSize
	dstRowBytes := elemSize
	for d := depth + 1; d < rank; d++ {
		srcRowBytes *= dims[d]
		dstRowBytes *= ubounds[d] - lbounds[d]
		if ubounds[d]-lbounds[d] != dims[d] {
			trailingFull = false
		}
	}

	if trailingFull {
		n := ubounds[depth] - lbounds[depth]
		srcOff := srcBase + lbounds[depth]*srcRowBytes
		total := n * srcRowBytes
		copy(dst[dstBase:dstBase+total], src[srcOff:srcOff+total])
		return
	}

	for i := lbounds[depth]; i < ubounds[depth]; i++ {
		srcOff := srcBase + i*srcRowBytes
		copyBlock(dst, src, elemSize, dims, lbounds, ubounds, depth+1, srcOff, dstBase)
		dstBase += dstRowBytes
	}
}

// copyOuterParallel partitions the outermost dimension's selected index
// range across a bounded worker pool; each worker walks its own indices
// sequentially through copyBlock starting at depth 1.
func copyOuterParallel(dst, src []byte, elemSize int, dims, lbounds, ubounds []int) {
	rank := len(dims)
	n := ubounds[0] - lbounds[0]
	if n <= 0 {
		return
	}

	srcRowBytes := elemSize
	dstRowBytes := elemSize
	for d := 1; d < rank; d++ {
		srcRowBytes *= dims[d]
		dstRowBytes *= ubounds[d] - lbounds[d]
	}

	workers := n
	if workers > MaxCopyWorkers {
		workers = MaxCopyWorkers
	}
	fanOut(n, workers, func(idx int) {
		i := lbounds[0] + idx
		srcBase := i * srcRowBytes
		dstBase := idx * dstRowBytes
		if rank == 1 {
			copy(dst[dstBase:dstBase+dstRowBytes], src[srcBase:srcBase+srcRowBytes])
			return
		}
		copyBlock(dst, src, elemSize, dims, lbounds, ubounds, 1, srcBase, dstBase)
	})
}

// parallelMemcpy splits a single large contiguous copy into page-aligned,
// strictly disjoint chunks across a bounded worker pool; the last chunk
// absorbs whatever remains past the final page boundary.
func parallelMemcpy(dst, src []byte) {
	n := len(src)
	if n <= pageSize {
		copy(dst, src)
		return
	}

	numPages := (n + pageSize - 1) / pageSize
	workers := numPages
	if workers > MaxCopyWorkers {
		workers = MaxCopyWorkers
	}
	pagesPerWorker := (numPages + workers - 1) / workers

	fanOut(workers, workers, func(w int) {
		startPage := w * pagesPerWorker
		if startPage >= numPages {
			return
		}
		endPage := startPage + pagesPerWorker
		if endPage > numPages {
			endPage = numPages
		}
		start := startPage * pageSize
		end := endPage * pageSize
		if end > n {
			end = n
		}
		copy(dst[start:end], src[start:end])
	})
}

// fanOut runs op(i) for 0 <= i < n across at most workers goroutines,
// blocking until every call returns. Workers pull indices from a shared
// atomic counter so a slow op doesn't leave other workers idle. Adapted
// from the atomic-counter work-stealing loop the corpus uses for bounded
// parallel traversal, trimmed to what a fixed-size byte copy needs: no
// error propagation (a copy can't fail) and no panic recovery or progress
// reporting.
func fanOut(n, workers int, op func(i int)) {
	if n <= 0 {
		return
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			op(i)
		}
		return
	}

	var next int64 = -1
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= n {
					return
				}
				op(i)
			}
		}()
	}
	wg.Wait()
}
