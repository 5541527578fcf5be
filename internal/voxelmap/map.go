// Package voxelmap implements a dual-resolution voxel point-cloud map: a
// metric map that simultaneously decimates accumulated points on a fine
// voxel lattice and answers bounded-radius nearest-neighbor queries through
// neighbor links precomputed between voxels.
//
// The map is a single-writer / multi-reader structure with no internal
// locking. Concurrent NNFindNearest, VisitAll*, IsEmpty and BoundingBox
// (once cached) calls are safe on a quiescent map; any mutation excludes
// all other operations and is the caller's responsibility to serialize,
// typically behind a sync.RWMutex.
package voxelmap

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/meridian-robotics/voxelslam/internal/geom"
)

// BoundingBox is an axis-aligned box. An empty map reports the zero box.
type BoundingBox struct {
	Min, Max Point
}

// DualVoxelMap stores a point cloud in a hashed voxel lattice of side
// DecimationSize, with every cell linked to its full neighborhood cube at
// the NN search radius. Cells are heap-allocated and never move once
// created, so neighbor links can hold plain pointers.
type DualVoxelMap struct {
	decimationSize    float32
	maxNNRadius       float32
	maxPointsPerVoxel uint32

	// Derived from the above in SetVoxelProperties.
	invDecim       float32
	maxNNRadiusSq  float32
	nnToDecimRatio int32

	voxels map[Index3D]*VoxelCell

	cachedBBox *BoundingBox

	// visitDepth counts in-flight VisitAll* traversals. Mutations check it
	// to reject re-entrant modification from inside a visit callback.
	visitDepth atomic.Int32

	// LikelihoodOpts tunes PointCloudLikelihood.
	LikelihoodOpts LikelihoodOptions

	// RenderOpts does not affect map semantics. It is carried here so a
	// serialized map round-trips its visualization settings.
	RenderOpts RenderOptions
}

// New returns a configured, empty map. See SetVoxelProperties for the
// parameter constraints.
func New(decimationSize, maxNNRadius float32, maxPointsPerVoxel uint32) (*DualVoxelMap, error) {
	m := &DualVoxelMap{
		LikelihoodOpts: DefaultLikelihoodOptions(),
		RenderOpts:     DefaultRenderOptions(),
	}
	if err := m.SetVoxelProperties(decimationSize, maxNNRadius, maxPointsPerVoxel); err != nil {
		return nil, err
	}
	return m, nil
}

// SetVoxelProperties replaces the voxel parameters and clears all current
// map contents; no rebinning of existing points is attempted. It requires
// decimationSize > 0 and maxNNRadius >= decimationSize, and
// maxPointsPerVoxel == 0 means unlimited points per voxel.
func (m *DualVoxelMap) SetVoxelProperties(decimationSize, maxNNRadius float32, maxPointsPerVoxel uint32) error {
	if m.visitDepth.Load() != 0 {
		return ErrReentrantMutation
	}
	if !(decimationSize > 0) {
		return fmt.Errorf("%w: decimation size %v must be > 0", ErrInvalidConfig, decimationSize)
	}
	if maxNNRadius < decimationSize {
		return fmt.Errorf("%w: max NN radius %v must be >= decimation size %v",
			ErrInvalidConfig, maxNNRadius, decimationSize)
	}
	m.decimationSize = decimationSize
	m.maxNNRadius = maxNNRadius
	m.maxPointsPerVoxel = maxPointsPerVoxel

	m.invDecim = 1 / decimationSize
	m.maxNNRadiusSq = maxNNRadius * maxNNRadius
	m.nnToDecimRatio = int32(math.Ceil(float64(maxNNRadius / decimationSize)))

	m.voxels = make(map[Index3D]*VoxelCell)
	m.cachedBBox = nil
	return nil
}

// DecimationSize returns the voxel side length in meters.
func (m *DualVoxelMap) DecimationSize() float32 { return m.decimationSize }

// MaxNNRadius returns the nearest-neighbor search radius bound in meters.
func (m *DualVoxelMap) MaxNNRadius() float32 { return m.maxNNRadius }

// MaxPointsPerVoxel returns the per-voxel point cap; 0 means unlimited.
func (m *DualVoxelMap) MaxPointsPerVoxel() uint32 { return m.maxPointsPerVoxel }

// NNToDecimRatio returns the neighborhood radius in voxels:
// ceil(MaxNNRadius / DecimationSize).
func (m *DualVoxelMap) NNToDecimRatio() int32 { return m.nnToDecimRatio }

// IndexOf returns the lattice index of the voxel containing p. Coordinates
// are binned by half-away-from-zero rounding of the scaled coordinate, so
// per axis a voxel at index i > 0 spans [i-0.5, i+0.5) * DecimationSize, one
// at i < 0 spans (i-0.5, i+0.5] * DecimationSize, and voxel 0 spans the open
// interval (-0.5, 0.5) * DecimationSize (the boundary assignment is fixed
// across runs).
func (m *DualVoxelMap) IndexOf(p Point) Index3D {
	return Index3D{
		X: m.coordToIndex(p.X),
		Y: m.coordToIndex(p.Y),
		Z: m.coordToIndex(p.Z),
	}
}

func (m *DualVoxelMap) coordToIndex(v float32) int32 {
	return int32(math.Round(float64(v * m.invDecim)))
}

// CenterOf returns the coordinate of the center of voxel i.
func (m *DualVoxelMap) CenterOf(i Index3D) Point {
	return Point{
		X: float32(i.X) * m.decimationSize,
		Y: float32(i.Y) * m.decimationSize,
		Z: float32(i.Z) * m.decimationSize,
	}
}

// Voxel returns the cell at index i, or nil.
func (m *DualVoxelMap) Voxel(i Index3D) *VoxelCell { return m.voxels[i] }

// VoxelCount returns the number of populated voxels.
func (m *DualVoxelMap) VoxelCount() int { return len(m.voxels) }

// PointCount returns the total number of stored points.
func (m *DualVoxelMap) PointCount() int {
	n := 0
	for _, c := range m.voxels {
		n += c.NumPoints()
	}
	return n
}

// InsertPoint inserts one point into the map. If the target voxel does not
// exist yet it is created and its neighborhood links are materialized in
// both directions: the new cell learns about every populated cell within
// NNToDecimRatio voxels, and each of those cells learns about the new one.
// Points overflowing MaxPointsPerVoxel are silently dropped; that is the
// decimation behavior, not an error.
func (m *DualVoxelMap) InsertPoint(p Point) error {
	if m.voxels == nil {
		return ErrNotInitialized
	}
	if m.visitDepth.Load() != 0 {
		return ErrReentrantMutation
	}
	idx := m.IndexOf(p)
	cell := m.voxels[idx]
	if cell == nil {
		cell = &VoxelCell{
			neighbors: make(map[Index3D]*VoxelCell, neighborhoodLen(m.nnToDecimRatio)),
		}
		m.voxels[idx] = cell
		m.linkNeighborhood(idx, cell)
	}
	cell.insertPoint(p, m.maxPointsPerVoxel)
	m.cachedBBox = nil
	return nil
}

// linkNeighborhood populates a newborn cell's full neighborhood link table
// and inserts the reciprocal link into every existing neighbor. The cell
// must already be present in m.voxels, so its own slot links to itself.
func (m *DualVoxelMap) linkNeighborhood(at Index3D, cell *VoxelCell) {
	VisitNeighborhood(at, m.nnToDecimRatio, func(n Index3D) bool {
		other := m.voxels[n]
		cell.neighbors[n] = other
		if other != nil && other != cell {
			other.neighbors[at] = cell
		}
		return true
	})
}

// InsertPointCloud transforms each sensor-frame point by the SE(3) pose of
// the sensor in the map frame and inserts it. The three coordinate slices
// must have equal length.
func (m *DualVoxelMap) InsertPointCloud(sensorPoseInMap geom.Pose, xs, ys, zs []float32) error {
	if len(xs) != len(ys) || len(xs) != len(zs) {
		return fmt.Errorf("point cloud coordinate slices have mismatched lengths: %d/%d/%d",
			len(xs), len(ys), len(zs))
	}
	for i := range xs {
		gx, gy, gz := sensorPoseInMap.ApplyF32(xs[i], ys[i], zs[i])
		if err := m.InsertPoint(Point{X: gx, Y: gy, Z: gz}); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops all voxels and resets caches. The voxel parameters are kept.
func (m *DualVoxelMap) Clear() error {
	if m.visitDepth.Load() != 0 {
		return ErrReentrantMutation
	}
	m.voxels = make(map[Index3D]*VoxelCell)
	m.cachedBBox = nil
	return nil
}

// IsEmpty reports whether the map holds no points.
func (m *DualVoxelMap) IsEmpty() bool {
	for _, c := range m.voxels {
		if c.NumPoints() > 0 {
			return false
		}
	}
	return true
}

// NNFindNearest returns the stored point nearest to q together with its
// squared distance, restricted to MaxNNRadius. The search walks the query
// voxel's precomputed neighbor links when the voxel exists; otherwise it
// synthesizes the neighborhood by probing the main map directly, which
// handles queries landing outside the mapped region. Candidates are visited
// in lexicographic neighborhood order then intra-voxel insertion order, and
// on equal squared distance the earliest-seen candidate wins.
func (m *DualVoxelMap) NNFindNearest(q Point) (nearest Point, distSq float32, ok bool) {
	if len(m.voxels) == 0 {
		return Point{}, 0, false
	}
	idx := m.IndexOf(q)

	bestSq := float32(math.Inf(1))
	var best Point
	found := false

	consider := func(c *VoxelCell) {
		c.VisitPoints(func(p Point) {
			dx := p.X - q.X
			dy := p.Y - q.Y
			dz := p.Z - q.Z
			d := dx*dx + dy*dy + dz*dz
			if d < bestSq {
				bestSq = d
				best = p
				found = true
			}
		})
	}

	if cell := m.voxels[idx]; cell != nil {
		VisitNeighborhood(idx, m.nnToDecimRatio, func(n Index3D) bool {
			if nc := cell.neighbors[n]; nc != nil {
				consider(nc)
			}
			return true
		})
	} else {
		VisitNeighborhood(idx, m.nnToDecimRatio, func(n Index3D) bool {
			if nc := m.voxels[n]; nc != nil {
				consider(nc)
			}
			return true
		})
	}

	if !found || bestSq > m.maxNNRadiusSq {
		return Point{}, 0, false
	}
	return best, bestSq, true
}

// BoundingBox returns the axis-aligned bounding box of all stored points,
// or the zero box for an empty map. The result is cached until the next
// mutation; computing a cold cache counts as a mutation for concurrency
// purposes.
func (m *DualVoxelMap) BoundingBox() BoundingBox {
	if m.cachedBBox != nil {
		return *m.cachedBBox
	}
	var bb BoundingBox
	first := true
	for _, c := range m.voxels {
		c.VisitPoints(func(p Point) {
			if first {
				bb.Min, bb.Max = p, p
				first = false
				return
			}
			bb.Min.X = min(bb.Min.X, p.X)
			bb.Min.Y = min(bb.Min.Y, p.Y)
			bb.Min.Z = min(bb.Min.Z, p.Z)
			bb.Max.X = max(bb.Max.X, p.X)
			bb.Max.Y = max(bb.Max.Y, p.Y)
			bb.Max.Z = max(bb.Max.Z, p.Z)
		})
	}
	m.cachedBBox = &bb
	return bb
}

// VisitAllPoints calls f for every stored point. Voxels are visited in the
// container's iteration order, which is implementation-defined; points
// within a voxel keep insertion order. f must not mutate the map.
func (m *DualVoxelMap) VisitAllPoints(f func(Point)) {
	m.visitDepth.Add(1)
	defer m.visitDepth.Add(-1)
	for _, c := range m.voxels {
		c.VisitPoints(f)
	}
}

// VisitAllVoxels calls f for every voxel. Iteration order is
// implementation-defined. f must not mutate the map.
func (m *DualVoxelMap) VisitAllVoxels(f func(Index3D, *VoxelCell)) {
	m.visitDepth.Add(1)
	defer m.visitDepth.Add(-1)
	for idx, c := range m.voxels {
		f(idx, c)
	}
}

// SaveToTextFile writes one "x y z" line per stored point, space-separated
// decimal, no header.
func (m *DualVoxelMap) SaveToTextFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	var werr error
	m.VisitAllPoints(func(p Point) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(w, "%f %f %f\n", p.X, p.Y, p.Z)
	})
	if werr == nil {
		werr = w.Flush()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("write %s: %w", path, werr)
	}
	return nil
}

// Fingerprint returns an order-independent digest of the voxel content and
// configuration, usable to detect unchanged maps between snapshots.
func (m *DualVoxelMap) Fingerprint() uint64 {
	h := uint64(math.Float32bits(m.decimationSize))<<32 |
		uint64(math.Float32bits(m.maxNNRadius))
	h ^= uint64(m.maxPointsPerVoxel) * 0x9e3779b97f4a7c15
	for idx, c := range m.voxels {
		// Offset the index hash so the origin voxel (hash 0) still counts.
		h += (idx.Hash() + 1) * (uint64(c.NumPoints()) + 1)
	}
	return h
}

// String returns a short description of the map.
func (m *DualVoxelMap) String() string {
	return fmt.Sprintf("DualVoxelMap: decimation=%.03fm nn_radius=%.03fm voxels=%d points=%d",
		m.decimationSize, m.maxNNRadius, m.VoxelCount(), m.PointCount())
}
