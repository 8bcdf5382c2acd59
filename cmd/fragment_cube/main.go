package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/unixpickle/essentials"

	seismic "github.com/qri-io/seismic-go"
)

func main() {
	var shapeStr string
	var fragmentStr string
	var guid string
	var storeDir string
	var compressor string
	var firstLine int
	var lineStep int
	var transfers int
	flag.StringVar(&shapeStr, "shape", "", "comma separated cube shape, e.g. 850,1000,1500")
	flag.StringVar(&fragmentStr, "fragment", "64,64,64", "comma separated fragment shape")
	flag.StringVar(&guid, "guid", "", "cube guid (default: random)")
	flag.StringVar(&storeDir, "store", "data", "root directory of the local store")
	flag.StringVar(&compressor, "compressor", "", "fragment compression (gzip, zst or empty)")
	flag.IntVar(&firstLine, "first-line", 1, "line number of the first line along every axis")
	flag.IntVar(&lineStep, "line-step", 1, "line number increment along every axis")
	flag.IntVar(&transfers, "transfers", 0, "concurrent fragment writes (0 uses GOMAXPROCS)")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 || shapeStr == "" {
		fmt.Fprintln(os.Stderr, "Usage: fragment_cube -shape <n0,n1,...> [flags] <volume.f32>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "The volume is raw little-endian float32 samples in row-major order.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
		os.Exit(1)
	}

	shape, err := parseInts(shapeStr)
	essentials.Must(err)
	fragment, err := parseInts(fragmentStr)
	essentials.Must(err)
	if guid == "" {
		guid = uuid.New().String()
	}

	log.Println("Reading volume...")
	volume := readVolume(args[0], shape)

	dims := make([][]int, len(shape))
	for i, n := range shape {
		dims[i] = make([]int, n)
		for j := range dims[i] {
			dims[i][j] = firstLine + j*lineStep
		}
	}
	m := &seismic.Manifest{
		FormatVersion: seismic.FormatVersion,
		GUID:          guid,
		Dimensions:    dims,
		Fragment:      fragment,
	}
	if compressor != "" {
		m.Compressor = &seismic.CompressionMeta{ID: compressor}
	}

	store, err := seismic.NewLocalStore(storeDir)
	essentials.Must(err)
	ctx := context.Background()
	cube, err := seismic.Create(ctx, store, m)
	essentials.Must(err)

	g := cube.Geometry()
	ids := g.Fragments()
	log.Printf("Writing %d fragments of shape %s ...", len(ids), g.FragmentShape())
	essentials.ConcurrentMap(transfers, len(ids), func(i int) {
		f, err := g.ExtractFragment(volume, ids[i])
		essentials.Must(err)
		essentials.Must(cube.WriteFragment(ctx, ids[i], f))
	})

	log.Printf("Wrote cube %s to %s", guid, storeDir)
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	res := make([]int, len(parts))
	for i, p := range parts {
		x, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		res[i] = x
	}
	return res, nil
}

func readVolume(path string, shape []int) []float32 {
	n := 1
	for _, x := range shape {
		n *= x
	}
	f, err := os.Open(path)
	essentials.Must(err)
	defer f.Close()

	info, err := f.Stat()
	essentials.Must(err)
	if info.Size() != int64(n)*seismic.Float32Size {
		essentials.Die(fmt.Sprintf("volume %s holds %d bytes, shape %v needs %d",
			path, info.Size(), shape, n*seismic.Float32Size))
	}

	volume := make([]float32, n)
	essentials.Must(binary.Read(f, binary.LittleEndian, volume))
	return volume
}
