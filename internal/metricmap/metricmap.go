// Package metricmap defines the capability set shared by all metric map
// kinds: observation insertion, observation-likelihood evaluation, reset
// and serialization. One level of dispatch, no deeper hierarchy.
package metricmap

import (
	"fmt"
	"io"

	"github.com/meridian-robotics/voxelslam/internal/geom"
	"github.com/meridian-robotics/voxelslam/internal/obs"
	"github.com/meridian-robotics/voxelslam/internal/voxelmap"
)

// Map is a metric map usable by scan registration and pose scoring.
// Implementations follow single-writer / multi-reader discipline; callers
// coordinate access.
type Map interface {
	// InsertObservation integrates an observation taken from robotPose (map
	// frame; nil means the origin). It reports whether the observation kind
	// was consumed at all.
	InsertObservation(o obs.Observation, robotPose *geom.Pose) (bool, error)

	// CanComputeLikelihood reports whether Likelihood accepts this
	// observation kind.
	CanComputeLikelihood(o obs.Observation) bool

	// Likelihood evaluates the unnormalized log-likelihood of the
	// observation assuming it was taken from the given vehicle pose.
	Likelihood(o obs.Observation, takenFrom geom.Pose) (float64, error)

	Clear() error
	IsEmpty() bool

	io.WriterTo
	io.ReaderFrom
}

// DualVoxel adapts a voxelmap.DualVoxelMap to the Map capability set.
type DualVoxel struct {
	m *voxelmap.DualVoxelMap
}

// FromDual wraps an existing dual voxel map.
func FromDual(m *voxelmap.DualVoxelMap) *DualVoxel {
	return &DualVoxel{m: m}
}

// Dual returns the wrapped map.
func (d *DualVoxel) Dual() *voxelmap.DualVoxelMap { return d.m }

// pointCloudOf reduces an observation to its point-cloud projection, or nil
// for kinds that have none.
func pointCloudOf(o obs.Observation) *obs.PointCloud {
	switch v := o.(type) {
	case *obs.PointCloud:
		return v
	case *obs.RotatingScan:
		return v.ToPointCloud()
	default:
		return nil
	}
}

func (d *DualVoxel) InsertObservation(o obs.Observation, robotPose *geom.Pose) (bool, error) {
	pc := pointCloudOf(o)
	if pc == nil {
		return false, nil
	}
	pose := pc.SensorPose
	if robotPose != nil {
		pose = robotPose.Compose(pc.SensorPose)
	}
	if err := d.m.InsertPointCloud(pose, pc.Xs, pc.Ys, pc.Zs); err != nil {
		return false, err
	}
	return true, nil
}

func (d *DualVoxel) CanComputeLikelihood(o obs.Observation) bool {
	switch o.(type) {
	case *obs.PointCloud, *obs.RotatingScan:
		return true
	default:
		return false
	}
}

func (d *DualVoxel) Likelihood(o obs.Observation, takenFrom geom.Pose) (float64, error) {
	pc := pointCloudOf(o)
	if pc == nil {
		return 0, fmt.Errorf("cannot compute likelihood for observation kind %T", o)
	}
	pose := takenFrom.Compose(pc.SensorPose)
	return d.m.PointCloudLikelihood(pose, pc.Xs, pc.Ys, pc.Zs), nil
}

func (d *DualVoxel) Clear() error  { return d.m.Clear() }
func (d *DualVoxel) IsEmpty() bool { return d.m.IsEmpty() }

func (d *DualVoxel) WriteTo(w io.Writer) (int64, error)  { return d.m.WriteTo(w) }
func (d *DualVoxel) ReadFrom(r io.Reader) (int64, error) { return d.m.ReadFrom(r) }
