package voxelmap

// Index3D identifies one cell on the decimation lattice. Each axis is a
// signed lattice coordinate; (0,0,0) is the voxel centered at the map
// origin.
type Index3D struct {
	X, Y, Z int32
}

// Hash mixes the three signed components into an order-sensitive digest, so
// permutations of the same components hash differently. The voxel container
// itself relies on Go's built-in map hashing; this digest is used for map
// content fingerprints.
func (i Index3D) Hash() uint64 {
	h := uint64(uint32(i.X)) * 73856093
	h ^= uint64(uint32(i.Y)) * 19349669
	h ^= uint64(uint32(i.Z)) * 83492791
	return h
}

// VisitNeighborhood calls f for every lattice index within Chebyshev
// distance r of center, in lexicographic (dx, dy, dz) order. The walk stops
// early if f returns false. The visited set has (2r+1)^3 entries and always
// includes center itself.
func VisitNeighborhood(center Index3D, r int32, f func(Index3D) bool) {
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				n := Index3D{X: center.X + dx, Y: center.Y + dy, Z: center.Z + dz}
				if !f(n) {
					return
				}
			}
		}
	}
}

// neighborhoodLen returns the number of cells in a cube of radius r.
func neighborhoodLen(r int32) int {
	n := int(2*r + 1)
	return n * n * n
}
