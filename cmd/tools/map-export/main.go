// Command map-export loads a voxel map snapshot — from a snapshot database
// or a raw serialized blob — and exports it as an x y z text file and/or an
// HTML chart, optionally printing per-axis summary statistics.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/meridian-robotics/voxelslam/internal/mapstore"
	"github.com/meridian-robotics/voxelslam/internal/viz"
	"github.com/meridian-robotics/voxelslam/internal/voxelmap"
)

var (
	dbFile     = flag.String("db", "", "Snapshot SQLite database to read from")
	sessionID  = flag.String("session", "", "Restrict -db lookup to one session (default: latest overall)")
	snapshotID = flag.Int64("snapshot", 0, "Load a specific snapshot ID instead of the latest")
	inFile     = flag.String("in", "", "Load a raw serialized map blob from this file instead of -db")
	textOut    = flag.String("text", "", "Write the map as an x y z text file")
	htmlOut    = flag.String("html", "", "Write an HTML chart of the map")
	printStats = flag.Bool("stats", false, "Print per-axis point statistics")
)

func main() {
	flag.Parse()

	m, err := loadMap()
	if err != nil {
		log.Fatalf("[map-export] %v", err)
	}
	log.Printf("[map-export] loaded %s", m)

	if *textOut != "" {
		if err := m.SaveToTextFile(*textOut); err != nil {
			log.Fatalf("[map-export] %v", err)
		}
		log.Printf("[map-export] text written to %s", *textOut)
	}
	if *htmlOut != "" {
		f, err := os.Create(*htmlOut)
		if err != nil {
			log.Fatalf("[map-export] create %s: %v", *htmlOut, err)
		}
		if err := viz.RenderHTML(f, m, "Voxel map"); err != nil {
			f.Close()
			log.Fatalf("[map-export] %v", err)
		}
		if err := f.Close(); err != nil {
			log.Fatalf("[map-export] close %s: %v", *htmlOut, err)
		}
		log.Printf("[map-export] chart written to %s", *htmlOut)
	}
	if *printStats {
		reportStats(m)
	}
}

func loadMap() (*voxelmap.DualVoxelMap, error) {
	switch {
	case *inFile != "":
		blob, err := os.ReadFile(*inFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", *inFile, err)
		}
		var m voxelmap.DualVoxelMap
		if _, err := m.ReadFrom(bytes.NewReader(blob)); err != nil {
			return nil, err
		}
		return &m, nil
	case *dbFile != "":
		store, err := mapstore.Open(*dbFile)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		var snap *mapstore.Snapshot
		if *snapshotID != 0 {
			snap, err = store.GetSnapshot(*snapshotID)
		} else {
			snap, err = store.LatestSnapshot(*sessionID)
		}
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, fmt.Errorf("no snapshot found in %s", *dbFile)
		}
		log.Printf("[map-export] snapshot %d session=%s reason=%s voxels=%d points=%d",
			snap.ID, snap.SessionID, snap.Reason, snap.VoxelCount, snap.PointCount)
		return snap.LoadMap()
	default:
		return nil, fmt.Errorf("one of -db or -in is required")
	}
}

func reportStats(m *voxelmap.DualVoxelMap) {
	n := m.PointCount()
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	zs := make([]float64, 0, n)
	m.VisitAllPoints(func(p voxelmap.Point) {
		xs = append(xs, float64(p.X))
		ys = append(ys, float64(p.Y))
		zs = append(zs, float64(p.Z))
	})
	if len(xs) == 0 {
		fmt.Println("map is empty")
		return
	}
	bb := m.BoundingBox()
	fmt.Printf("points: %d  voxels: %d\n", n, m.VoxelCount())
	fmt.Printf("bbox: (%.3f %.3f %.3f) - (%.3f %.3f %.3f)\n",
		bb.Min.X, bb.Min.Y, bb.Min.Z, bb.Max.X, bb.Max.Y, bb.Max.Z)
	for _, axis := range []struct {
		name string
		vals []float64
	}{{"x", xs}, {"y", ys}, {"z", zs}} {
		mean, std := stat.MeanStdDev(axis.vals, nil)
		fmt.Printf("%s: mean=%.3f stddev=%.3f\n", axis.name, mean, std)
	}
}
