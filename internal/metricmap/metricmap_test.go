package metricmap

import (
	"bytes"
	"math"
	"testing"

	"github.com/meridian-robotics/voxelslam/internal/geom"
	"github.com/meridian-robotics/voxelslam/internal/obs"
	"github.com/meridian-robotics/voxelslam/internal/voxelmap"
)

func newDual(t *testing.T) *DualVoxel {
	t.Helper()
	m, err := voxelmap.New(0.2, 0.6, 0)
	if err != nil {
		t.Fatal(err)
	}
	return FromDual(m)
}

func TestInsertPointCloudObservation(t *testing.T) {
	d := newDual(t)
	consumed, err := d.InsertObservation(&obs.PointCloud{
		Label:      "lidar",
		SensorPose: geom.FromTranslation(0, 0, 1),
		Xs:         []float32{1},
		Ys:         []float32{2},
		Zs:         []float32{3},
	}, nil)
	if err != nil || !consumed {
		t.Fatalf("insert: consumed=%v err=%v", consumed, err)
	}
	// Sensor pose offsets the point by +1 in z.
	_, dSq, ok := d.Dual().NNFindNearest(voxelmap.Point{X: 1, Y: 2, Z: 4})
	if !ok || dSq > 1e-6 {
		t.Fatalf("point not found at sensor-pose-adjusted location: ok=%v dSq=%v", ok, dSq)
	}
}

func TestInsertComposesRobotPose(t *testing.T) {
	d := newDual(t)
	robot := geom.FromTranslation(10, 0, 0)
	consumed, err := d.InsertObservation(&obs.PointCloud{
		SensorPose: geom.FromTranslation(0, 5, 0),
		Xs:         []float32{0},
		Ys:         []float32{0},
		Zs:         []float32{0},
	}, &robot)
	if err != nil || !consumed {
		t.Fatalf("insert: consumed=%v err=%v", consumed, err)
	}
	_, dSq, ok := d.Dual().NNFindNearest(voxelmap.Point{X: 10, Y: 5, Z: 0})
	if !ok || dSq > 1e-6 {
		t.Fatalf("robot∘sensor composition not applied: ok=%v dSq=%v", ok, dSq)
	}
}

func TestInsertRotatingScan(t *testing.T) {
	d := newDual(t)
	scan := &obs.RotatingScan{
		SensorPose:        geom.Identity(),
		Rings:             1,
		AzimuthBins:       4,
		Ranges:            []float32{3, 0, 0, 0},
		RingElevationsDeg: []float64{0},
	}
	consumed, err := d.InsertObservation(scan, nil)
	if err != nil || !consumed {
		t.Fatalf("insert scan: consumed=%v err=%v", consumed, err)
	}
	// Azimuth 0 is +Y forward.
	_, dSq, ok := d.Dual().NNFindNearest(voxelmap.Point{X: 0, Y: 3, Z: 0})
	if !ok || dSq > 1e-6 {
		t.Fatalf("scan return not inserted: ok=%v dSq=%v", ok, dSq)
	}
}

func TestUnsupportedKindsNotConsumed(t *testing.T) {
	d := newDual(t)
	for _, o := range []obs.Observation{
		&obs.RobotPose{},
		&obs.Image{},
	} {
		consumed, err := d.InsertObservation(o, nil)
		if err != nil {
			t.Fatalf("%T: %v", o, err)
		}
		if consumed {
			t.Fatalf("%T: consumed by a point map", o)
		}
		if d.CanComputeLikelihood(o) {
			t.Fatalf("%T: claims likelihood support", o)
		}
		if _, err := d.Likelihood(o, geom.Identity()); err == nil {
			t.Fatalf("%T: likelihood did not fail", o)
		}
	}
}

func TestLikelihoodThroughAdapter(t *testing.T) {
	d := newDual(t)
	d.Dual().LikelihoodOpts.Decimation = 1
	pc := &obs.PointCloud{
		SensorPose: geom.Identity(),
		Xs:         []float32{1, 2},
		Ys:         []float32{0, 0},
		Zs:         []float32{0, 0},
	}
	if _, err := d.InsertObservation(pc, nil); err != nil {
		t.Fatal(err)
	}
	if !d.CanComputeLikelihood(pc) {
		t.Fatal("point cloud not scoreable")
	}
	ll, err := d.Likelihood(pc, geom.Identity())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ll) > 1e-9 {
		t.Fatalf("self-likelihood = %v, want ~0", ll)
	}
}

func TestSerializeThroughAdapter(t *testing.T) {
	d := newDual(t)
	if _, err := d.InsertObservation(&obs.PointCloud{
		Xs: []float32{1}, Ys: []float32{1}, Zs: []float32{1},
	}, nil); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	restored := newDual(t)
	if _, err := restored.ReadFrom(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatal(err)
	}
	if restored.IsEmpty() {
		t.Fatal("restored map is empty")
	}
	if err := restored.Clear(); err != nil {
		t.Fatal(err)
	}
	if !restored.IsEmpty() {
		t.Fatal("clear through the adapter failed")
	}
}
