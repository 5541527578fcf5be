package voxelmap

// Point is a single map point in meters. Geometry is stored in float32;
// accumulators use float64.
type Point struct {
	X, Y, Z float32
}

// ssoLength is the inline point capacity of a VoxelCell. Cells holding at
// most this many points never allocate point storage on the heap, which is
// the common case for decimated maps.
const ssoLength = 16

// VoxelCell is the payload of one voxel: a small-buffer-optimized point
// store, a lazily computed centroid, and the precomputed links to every
// cell in its NN neighborhood cube.
//
// Neighbor links are plain pointers into cells owned by the enclosing
// DualVoxelMap. The container never moves a cell once created, so the
// pointers stay valid for the lifetime of the map. A key present with a nil
// value records a neighbor slot known to be empty.
type VoxelCell struct {
	inline  [ssoLength]Point
	inlineN uint8
	spill   []Point

	centroid *Point

	neighbors map[Index3D]*VoxelCell
}

// NumPoints returns the number of points stored in the cell.
func (c *VoxelCell) NumPoints() int {
	return int(c.inlineN) + len(c.spill)
}

// PointAt returns the i-th stored point. Points keep their insertion order.
func (c *VoxelCell) PointAt(i int) Point {
	if i < int(c.inlineN) {
		return c.inline[i]
	}
	return c.spill[i-int(c.inlineN)]
}

// VisitPoints calls f for every stored point in insertion order.
func (c *VoxelCell) VisitPoints(f func(Point)) {
	for i := 0; i < int(c.inlineN); i++ {
		f(c.inline[i])
	}
	for _, p := range c.spill {
		f(p)
	}
}

// Points returns a copy of the stored points in insertion order.
func (c *VoxelCell) Points() []Point {
	out := make([]Point, 0, c.NumPoints())
	c.VisitPoints(func(p Point) { out = append(out, p) })
	return out
}

// insertPoint appends p unless the cell already holds maxPerVoxel points
// (maxPerVoxel == 0 means unlimited). Overflowing points are dropped, not
// evicted: older samples persist, implementing decimation. A successful
// insert invalidates the centroid cache.
func (c *VoxelCell) insertPoint(p Point, maxPerVoxel uint32) {
	if maxPerVoxel > 0 && uint32(c.NumPoints()) >= maxPerVoxel {
		return
	}
	if c.inlineN < ssoLength {
		c.inline[c.inlineN] = p
		c.inlineN++
	} else {
		c.spill = append(c.spill, p)
	}
	c.centroid = nil
}

// Centroid returns the mean of the cell's points, computing and caching it
// on first use. Returns ErrEmptyVoxel for a cell with no points.
func (c *VoxelCell) Centroid() (Point, error) {
	if c.centroid != nil {
		return *c.centroid, nil
	}
	n := c.NumPoints()
	if n == 0 {
		return Point{}, ErrEmptyVoxel
	}
	var sx, sy, sz float64
	c.VisitPoints(func(p Point) {
		sx += float64(p.X)
		sy += float64(p.Y)
		sz += float64(p.Z)
	})
	m := Point{
		X: float32(sx / float64(n)),
		Y: float32(sy / float64(n)),
		Z: float32(sz / float64(n)),
	}
	c.centroid = &m
	return m, nil
}

// Neighbors exposes the cell's neighborhood link table. Keys cover the full
// (2r+1)^3 cube around the cell including the cell itself; a nil value
// means the neighbor slot is known to be empty. Callers must not modify the
// table.
func (c *VoxelCell) Neighbors() map[Index3D]*VoxelCell {
	return c.neighbors
}
