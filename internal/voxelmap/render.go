package voxelmap

// Colormap selects how point colors are derived from a coordinate when
// rendering a map. ColormapNone uses the fixed RenderOptions color.
type Colormap uint8

const (
	ColormapNone Colormap = iota
	ColormapGrayscale
	ColormapJet
	ColormapHot
)

// RenderOptions carries visualization settings. They do not affect map
// semantics; the map stores them only so they survive serialization and can
// be handed to a renderer.
type RenderOptions struct {
	PointSize float32

	// ShowMeanOnly renders one point per voxel (the centroid) instead of
	// every stored point.
	ShowMeanOnly bool

	// Color is the fixed point color (r, g, b in [0,1]), superseded by
	// Colormap unless that is ColormapNone.
	Color [3]float32

	Colormap Colormap

	// RecolorAxis selects the coordinate indexing the colormap:
	// 0=x, 1=y, 2=z.
	RecolorAxis uint8
}

// DefaultRenderOptions returns the standard rendering settings.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		PointSize:    1.0,
		ShowMeanOnly: true,
		Color:        [3]float32{0, 0, 1},
		Colormap:     ColormapHot,
		RecolorAxis:  2,
	}
}
