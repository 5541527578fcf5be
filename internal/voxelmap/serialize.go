package voxelmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// serialVersion is the schema version byte leading every serialized map.
const serialVersion = 1

// maxSerialVoxels bounds the voxel count accepted from a stream before any
// allocation, so a corrupted count field cannot exhaust memory.
const maxSerialVoxels = 1 << 32

// maxSerialPointsPerVoxel bounds the per-voxel point count accepted from a
// stream when the map's own cap is unlimited.
const maxSerialPointsPerVoxel = 1 << 28

// Serialized layout (all little-endian):
//
//	u8       schema version
//	f32 f32  decimation size, max NN radius
//	u32      max points per voxel
//	f64 f64  likelihood sigma, max correspondence distance
//	u32      likelihood decimation
//	f32      render point size
//	u8       render show-mean-only flag
//	3×f32    render color r,g,b
//	u8 u8    render colormap, recolor axis
//	u64      voxel count
//	per voxel: 3×i32 index, u32 point count, point count × 3×f32
//
// Voxels are written in sorted index order so that writing the same map
// twice, or re-writing a freshly loaded map, yields identical bytes.
// Neighbor links are not serialized; ReadFrom rebuilds them with a
// post-load linking pass over every cell.

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) emit(v any) {
	if cw.err != nil {
		return
	}
	if cw.err = binary.Write(cw.w, binary.LittleEndian, v); cw.err == nil {
		cw.n += int64(binary.Size(v))
	}
}

// WriteTo serializes the map. It implements io.WriterTo.
func (m *DualVoxelMap) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	cw.emit(uint8(serialVersion))
	cw.emit(m.decimationSize)
	cw.emit(m.maxNNRadius)
	cw.emit(m.maxPointsPerVoxel)

	cw.emit(m.LikelihoodOpts.SigmaDist)
	cw.emit(m.LikelihoodOpts.MaxCorrDistance)
	cw.emit(m.LikelihoodOpts.Decimation)

	cw.emit(m.RenderOpts.PointSize)
	cw.emit(m.RenderOpts.ShowMeanOnly)
	cw.emit(m.RenderOpts.Color)
	cw.emit(uint8(m.RenderOpts.Colormap))
	cw.emit(m.RenderOpts.RecolorAxis)

	indices := make([]Index3D, 0, len(m.voxels))
	for idx := range m.voxels {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(a, b int) bool {
		ia, ib := indices[a], indices[b]
		if ia.X != ib.X {
			return ia.X < ib.X
		}
		if ia.Y != ib.Y {
			return ia.Y < ib.Y
		}
		return ia.Z < ib.Z
	})

	cw.emit(uint64(len(indices)))
	for _, idx := range indices {
		cell := m.voxels[idx]
		cw.emit(idx.X)
		cw.emit(idx.Y)
		cw.emit(idx.Z)
		cw.emit(uint32(cell.NumPoints()))
		cell.VisitPoints(func(p Point) {
			cw.emit(p.X)
			cw.emit(p.Y)
			cw.emit(p.Z)
		})
	}
	if cw.err != nil {
		return cw.n, fmt.Errorf("serialize voxel map: %w", cw.err)
	}
	return cw.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

type streamReader struct {
	cr  *countingReader
	err error
}

func (sr *streamReader) take(v any) {
	if sr.err != nil {
		return
	}
	sr.err = binary.Read(sr.cr, binary.LittleEndian, v)
}

func (sr *streamReader) corrupt(format string, args ...any) *CorruptError {
	return &CorruptError{Offset: sr.cr.n, Reason: fmt.Sprintf(format, args...)}
}

// finish converts a pending read error into a CorruptError carrying the
// stream offset. Truncation surfaces as io.EOF or io.ErrUnexpectedEOF.
func (sr *streamReader) finish() error {
	if sr.err == nil {
		return nil
	}
	if errors.Is(sr.err, io.EOF) || errors.Is(sr.err, io.ErrUnexpectedEOF) {
		return sr.corrupt("truncated stream")
	}
	return fmt.Errorf("deserialize voxel map: %w", sr.err)
}

// ReadFrom replaces the full map state with the stream's contents. It
// implements io.ReaderFrom. On error the receiver is left unchanged. The
// render and likelihood option blocks are restored along with the voxel
// content, and every cell's neighborhood links are rebuilt after loading.
func (m *DualVoxelMap) ReadFrom(r io.Reader) (int64, error) {
	if m.visitDepth.Load() != 0 {
		return 0, ErrReentrantMutation
	}
	sr := &streamReader{cr: &countingReader{r: r}}

	var version uint8
	sr.take(&version)
	if sr.err == nil && version != serialVersion {
		return sr.cr.n, sr.corrupt("unknown schema version %d", version)
	}

	var (
		decimationSize, maxNNRadius float32
		maxPointsPerVoxel           uint32
		lik                         LikelihoodOptions
		ro                          RenderOptions
		colormap                    uint8
	)
	sr.take(&decimationSize)
	sr.take(&maxNNRadius)
	sr.take(&maxPointsPerVoxel)
	sr.take(&lik.SigmaDist)
	sr.take(&lik.MaxCorrDistance)
	sr.take(&lik.Decimation)
	sr.take(&ro.PointSize)
	sr.take(&ro.ShowMeanOnly)
	sr.take(&ro.Color)
	sr.take(&colormap)
	sr.take(&ro.RecolorAxis)
	if err := sr.finish(); err != nil {
		return sr.cr.n, err
	}
	ro.Colormap = Colormap(colormap)
	if !(decimationSize > 0) || maxNNRadius < decimationSize {
		return sr.cr.n, sr.corrupt("invalid voxel parameters: decimation=%v nn_radius=%v",
			decimationSize, maxNNRadius)
	}

	loaded := &DualVoxelMap{
		LikelihoodOpts: lik,
		RenderOpts:     ro,
	}
	if err := loaded.SetVoxelProperties(decimationSize, maxNNRadius, maxPointsPerVoxel); err != nil {
		return sr.cr.n, sr.corrupt("voxel parameters rejected: %v", err)
	}

	var voxelCount uint64
	sr.take(&voxelCount)
	if err := sr.finish(); err != nil {
		return sr.cr.n, err
	}
	if voxelCount > maxSerialVoxels {
		return sr.cr.n, sr.corrupt("voxel count %d exceeds limit", voxelCount)
	}

	pointCap := uint32(maxSerialPointsPerVoxel)
	if maxPointsPerVoxel > 0 {
		pointCap = maxPointsPerVoxel
	}
	for v := uint64(0); v < voxelCount; v++ {
		var idx Index3D
		var pointCount uint32
		sr.take(&idx.X)
		sr.take(&idx.Y)
		sr.take(&idx.Z)
		sr.take(&pointCount)
		if err := sr.finish(); err != nil {
			return sr.cr.n, err
		}
		if pointCount > pointCap {
			return sr.cr.n, sr.corrupt("voxel %v point count %d exceeds cap %d", idx, pointCount, pointCap)
		}
		if _, dup := loaded.voxels[idx]; dup {
			return sr.cr.n, sr.corrupt("duplicate voxel index %v", idx)
		}
		cell := &VoxelCell{
			neighbors: make(map[Index3D]*VoxelCell, neighborhoodLen(loaded.nnToDecimRatio)),
		}
		for p := uint32(0); p < pointCount; p++ {
			var pt Point
			sr.take(&pt.X)
			sr.take(&pt.Y)
			sr.take(&pt.Z)
			if err := sr.finish(); err != nil {
				return sr.cr.n, err
			}
			if !finite(pt.X) || !finite(pt.Y) || !finite(pt.Z) {
				return sr.cr.n, sr.corrupt("non-finite point in voxel %v", idx)
			}
			cell.insertPoint(pt, 0)
		}
		loaded.voxels[idx] = cell
	}

	// Rebuild the neighborhood adjacency: every cell links the full cube
	// around it, nil for slots with no cell. With all cells present the
	// relation comes out bidirectional without replaying insertions.
	for idx, cell := range loaded.voxels {
		VisitNeighborhood(idx, loaded.nnToDecimRatio, func(n Index3D) bool {
			cell.neighbors[n] = loaded.voxels[n]
			return true
		})
	}

	m.decimationSize = loaded.decimationSize
	m.maxNNRadius = loaded.maxNNRadius
	m.maxPointsPerVoxel = loaded.maxPointsPerVoxel
	m.invDecim = loaded.invDecim
	m.maxNNRadiusSq = loaded.maxNNRadiusSq
	m.nnToDecimRatio = loaded.nnToDecimRatio
	m.voxels = loaded.voxels
	m.cachedBBox = nil
	m.LikelihoodOpts = loaded.LikelihoodOpts
	m.RenderOpts = loaded.RenderOpts
	return sr.cr.n, nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
