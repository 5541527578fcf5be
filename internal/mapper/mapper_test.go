package mapper

import (
	"testing"
	"time"

	"github.com/meridian-robotics/voxelslam/internal/geom"
	"github.com/meridian-robotics/voxelslam/internal/obs"
	"github.com/meridian-robotics/voxelslam/internal/voxelmap"
)

type memStore struct {
	inserted []string
	nextID   int64
}

func (s *memStore) InsertSnapshot(sessionID string, m *voxelmap.DualVoxelMap, reason string) (int64, error) {
	s.inserted = append(s.inserted, reason)
	s.nextID++
	return s.nextID, nil
}

func newTestMapper(t *testing.T, store SnapshotStore, every time.Duration) *Module {
	t.Helper()
	m, err := New(Options{
		DecimationSize:    0.2,
		MaxNNRadius:       0.6,
		MaxPointsPerVoxel: 0,
		SnapshotEvery:     every,
		Store:             store,
		SessionID:         "s",
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func cloud(xs ...float32) *obs.PointCloud {
	pc := &obs.PointCloud{SensorPose: geom.Identity()}
	for _, x := range xs {
		pc.Xs = append(pc.Xs, x)
		pc.Ys = append(pc.Ys, 0)
		pc.Zs = append(pc.Zs, 0)
	}
	return pc
}

func TestMapperInvalidOptions(t *testing.T) {
	if _, err := New(Options{DecimationSize: 0, MaxNNRadius: 1}); err == nil {
		t.Fatal("invalid voxel options accepted")
	}
}

func TestMapperBuildsMap(t *testing.T) {
	m := newTestMapper(t, nil, 0)
	if err := m.OnObservation(cloud(0, 1, 2)); err != nil {
		t.Fatal(err)
	}
	s := m.Stats()
	if s.Frames != 1 || s.Points != 3 {
		t.Fatalf("stats = %+v", s)
	}
	if _, _, ok := m.Map().NNFindNearest(voxelmap.Point{X: 1}); !ok {
		t.Fatal("inserted scan not queryable")
	}
}

func TestMapperAppliesGroundTruthPose(t *testing.T) {
	m := newTestMapper(t, nil, 0)
	if err := m.OnObservation(&obs.RobotPose{Pose: geom.FromTranslation(100, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := m.OnObservation(cloud(0)); err != nil {
		t.Fatal(err)
	}
	if _, dSq, ok := m.Map().NNFindNearest(voxelmap.Point{X: 100}); !ok || dSq > 1e-6 {
		t.Fatalf("scan not inserted at ground-truth pose: ok=%v dSq=%v", ok, dSq)
	}
}

func TestMapperScoresAfterFirstFrame(t *testing.T) {
	m := newTestMapper(t, nil, 0)
	// First frame cannot be scored (empty map), the second can.
	if err := m.OnObservation(cloud(0, 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.OnObservation(cloud(0, 1)); err != nil {
		t.Fatal(err)
	}
	s := m.Stats()
	if s.ScoredFrames != 1 {
		t.Fatalf("scored %d frames, want 1", s.ScoredFrames)
	}
}

func TestMapperIgnoresUnsupportedKinds(t *testing.T) {
	m := newTestMapper(t, nil, 0)
	if err := m.OnObservation(&obs.Image{Path: "x.png"}); err != nil {
		t.Fatal(err)
	}
	if s := m.Stats(); s.Frames != 0 {
		t.Fatalf("image counted as a frame: %+v", s)
	}
}

func TestMapperPeriodicSnapshot(t *testing.T) {
	store := &memStore{}
	m := newTestMapper(t, store, time.Nanosecond)

	// Empty map: nothing to snapshot.
	if err := m.SpinOnce(); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 0 {
		t.Fatal("snapshotted an empty map")
	}

	if err := m.OnObservation(cloud(0, 1, 2)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if err := m.SpinOnce(); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 1 || store.inserted[0] != "periodic" {
		t.Fatalf("snapshots = %v", store.inserted)
	}

	// Unchanged map: the fingerprint gate suppresses a duplicate snapshot.
	time.Sleep(time.Millisecond)
	if err := m.SpinOnce(); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("duplicate snapshot of unchanged map: %v", store.inserted)
	}

	if err := m.FinalSnapshot(); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 2 || store.inserted[1] != "final" {
		t.Fatalf("snapshots = %v", store.inserted)
	}
}
