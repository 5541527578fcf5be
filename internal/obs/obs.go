// Package obs defines the sensor observation variants flowing between the
// dataset sources and the metric maps. Observations are immutable once
// published.
package obs

import (
	"time"

	"github.com/meridian-robotics/voxelslam/internal/geom"
)

// Observation is one timestamped sensor reading.
type Observation interface {
	SensorLabel() string
	Timestamp() time.Time
}

// PointCloud is a set of 3-D points in the sensor frame, plus the pose of
// the sensor on the vehicle. Optional per-point intensity and time columns
// may be empty or match the coordinate length.
type PointCloud struct {
	Label      string
	Stamp      time.Time
	SensorPose geom.Pose

	Xs, Ys, Zs  []float32
	Intensities []float32

	// Times holds per-point offsets in seconds relative to Stamp, for
	// sensors that sweep during a frame.
	Times []float64
}

func (o *PointCloud) SensorLabel() string  { return o.Label }
func (o *PointCloud) Timestamp() time.Time { return o.Stamp }

// Len returns the number of points.
func (o *PointCloud) Len() int { return len(o.Xs) }

// RotatingScan is a range image from a spinning lidar: one range per
// (ring, azimuth bin), zero meaning no return.
type RotatingScan struct {
	Label      string
	Stamp      time.Time
	SensorPose geom.Pose

	Rings       int
	AzimuthBins int
	// Ranges has length Rings*AzimuthBins, indexed ring*AzimuthBins+bin.
	Ranges []float32
	// RingElevationsDeg has one elevation per ring.
	RingElevationsDeg []float64
}

func (o *RotatingScan) SensorLabel() string  { return o.Label }
func (o *RotatingScan) Timestamp() time.Time { return o.Stamp }

// Idx returns the Ranges index for (ring, azimuth bin).
func (o *RotatingScan) Idx(ring, azBin int) int { return ring*o.AzimuthBins + azBin }

// ToPointCloud projects the scan to Cartesian sensor-frame points, skipping
// bins with no return. Azimuth bin b covers b * 360/AzimuthBins degrees.
func (o *RotatingScan) ToPointCloud() *PointCloud {
	pc := &PointCloud{
		Label:      o.Label,
		Stamp:      o.Stamp,
		SensorPose: o.SensorPose,
	}
	if o.AzimuthBins <= 0 {
		return pc
	}
	azStep := 360.0 / float64(o.AzimuthBins)
	for ring := 0; ring < o.Rings; ring++ {
		var elev float64
		if ring < len(o.RingElevationsDeg) {
			elev = o.RingElevationsDeg[ring]
		}
		for b := 0; b < o.AzimuthBins; b++ {
			r := o.Ranges[o.Idx(ring, b)]
			if r <= 0 {
				continue
			}
			x, y, z := geom.SphericalToCartesian(float64(r), float64(b)*azStep, elev)
			pc.Xs = append(pc.Xs, float32(x))
			pc.Ys = append(pc.Ys, float32(y))
			pc.Zs = append(pc.Zs, float32(z))
		}
	}
	return pc
}

// RobotPose is an externally supplied vehicle pose in the map frame, e.g. a
// ground-truth trajectory sample.
type RobotPose struct {
	Label string
	Stamp time.Time
	Pose  geom.Pose
}

func (o *RobotPose) SensorLabel() string  { return o.Label }
func (o *RobotPose) Timestamp() time.Time { return o.Stamp }

// Image is an opaque camera frame reference. Metric maps cannot consume it;
// it exists so camera-bearing datasets can publish complete frames.
type Image struct {
	Label string
	Stamp time.Time
	Path  string
}

func (o *Image) SensorLabel() string  { return o.Label }
func (o *Image) Timestamp() time.Time { return o.Stamp }
