// Command stencil runs a small five-point stencil simulation and writes a
// checkpoint of the field every few iterations, driving the writer package
// the way a real simulation loop would: Open, Write, Close, and keep
// stepping the field while the worker writes the checkpoint out. Each
// checkpoint hands Write a fresh little-endian byte copy of the field, so
// the bytes given to Write are not modified after Close.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	alog "github.com/jbigot/ah5go/log"
	"github.com/jbigot/ah5go/storage"
	"github.com/jbigot/ah5go/storage/native"
	"github.com/jbigot/ah5go/writer"
)

// sessionIDer is the capability storage/native's file handle exposes
// beyond the opaque storage.FileHandle interface, for correlating a
// checkpoint's log lines with the container it was written into.
type sessionIDer interface {
	LastSessionID() uuid.UUID
}

const (
	height = 2048
	width  = 512
)

func at(data []float64, y, x int) float64 {
	y = ((y % height) + height) % height
	x = ((x % width) + width) % width
	return data[y*width+x]
}

func setAt(data []float64, y, x int, v float64) {
	y = ((y % height) + height) % height
	x = ((x % width) + width) % width
	data[y*width+x] = v
}

func initField(data []float64) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			setAt(data, y, x, math.Sin(float64(x)/width)*math.Sin(float64(y)/height))
		}
	}
}

func step(in, out []float64) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := 0.5*at(in, y, x) +
				0.125*at(in, y, x-1) +
				0.125*at(in, y, x+1) +
				0.125*at(in, y-1, x) +
				0.125*at(in, y+1, x)
			setAt(out, y, x, v)
		}
	}
}

func float64ToBytes(data []float64) []byte {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		bits := math.Float64bits(v)
		for j := 0; j < 8; j++ {
			buf[8*i+j] = byte(bits >> (8 * j))
		}
	}
	return buf
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("stencil: ")

	outDir := flag.String("out", ".", "directory to write checkpoint files into")
	iterations := flag.Int("iterations", 100, "number of stencil steps to run")
	every := flag.Int("every", 10, "write a checkpoint every N iterations")
	compress := flag.Bool("compress", false, "compress checkpoint datasets")
	verbose := flag.Bool("v", false, "enable status-level logging")
	flag.Parse()

	lib := native.New()
	lib.Compress = *compress

	opts := []writer.Option{writer.WithParallelCopy(true)}
	if *verbose {
		opts = append(opts, writer.WithLogLevel(alog.Status))
	}
	inst := writer.New(lib, opts...)

	data := make([]float64, height*width)
	next := make([]float64, height*width)
	initField(data)

	checkpoint := func(iter int) {
		path := filepath.Join(*outDir, fmt.Sprintf("data.%d.h5", iter))
		if err := inst.Open(path); err != nil {
			log.Fatalf("open %s: %v", path, err)
		}
		if sid, ok := inst.OpenFile().(sessionIDer); ok {
			log.Printf("checkpoint %s session=%s", path, sid.LastSessionID())
		}
		dims := []int{height, width}
		zeros := []int{0, 0}
		buf := float64ToBytes(data)
		if err := inst.Write("data", buf, 2, dims, zeros, dims, storage.Float64); err != nil {
			log.Fatalf("write: %v", err)
		}
		if err := inst.Close(); err != nil {
			log.Fatalf("close %s: %v", path, err)
		}
	}

	for i := 0; i < *iterations; i++ {
		if i%*every == 0 {
			checkpoint(i)
		}
		step(data, next)
		data, next = next, data
	}
	checkpoint(*iterations)

	if err := inst.Finalize(); err != nil {
		log.Fatalf("finalize: %v", err)
	}
	os.Exit(0)
}
