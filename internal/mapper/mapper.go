// Package mapper is the map-building module: it consumes dataset
// observations, scores each scan against the map built so far, inserts it,
// and periodically snapshots the map to a store.
package mapper

import (
	"fmt"
	"sync"
	"time"

	"github.com/meridian-robotics/voxelslam/internal/geom"
	"github.com/meridian-robotics/voxelslam/internal/metricmap"
	"github.com/meridian-robotics/voxelslam/internal/monitoring"
	"github.com/meridian-robotics/voxelslam/internal/obs"
	"github.com/meridian-robotics/voxelslam/internal/runtime"
	"github.com/meridian-robotics/voxelslam/internal/voxelmap"
)

// ModuleName is the kind name the mapper registers under.
const ModuleName = "voxel_mapper"

// SnapshotStore persists serialized maps. Implemented by mapstore.Store.
type SnapshotStore interface {
	InsertSnapshot(sessionID string, m *voxelmap.DualVoxelMap, reason string) (int64, error)
}

// Options configures a mapper module.
type Options struct {
	DecimationSize    float32
	MaxNNRadius       float32
	MaxPointsPerVoxel uint32

	// SnapshotEvery triggers a store snapshot on that wall-clock cadence;
	// zero disables periodic snapshots.
	SnapshotEvery time.Duration

	// Store receives snapshots; may be nil.
	Store SnapshotStore

	// SessionID tags snapshots written to the store.
	SessionID string
}

// Module builds a dual voxel map from incoming observations. The voxel map
// itself is single-writer; the module serializes all access behind mu so
// observation delivery and snapshotting can run from the host's spin loop
// while stats readers poll concurrently.
type Module struct {
	runtime.BaseModule

	opts Options

	mu       sync.RWMutex
	dual     *voxelmap.DualVoxelMap
	mm       metricmap.Map
	lastPose *geom.Pose

	frames        int
	droppedKinds  int
	logLikSum     float64
	logLikFrames  int
	lastSnapshot  time.Time
	lastFinger    uint64
	snapshotCount int
}

// New returns a mapper with the given options.
func New(opts Options) (*Module, error) {
	dual, err := voxelmap.New(opts.DecimationSize, opts.MaxNNRadius, opts.MaxPointsPerVoxel)
	if err != nil {
		return nil, err
	}
	return &Module{
		opts: opts,
		dual: dual,
		mm:   metricmap.FromDual(dual),
	}, nil
}

func (m *Module) Name() string { return ModuleName }

// Map exposes the underlying dual voxel map. Callers must hold no
// expectations of consistency while the spin loop is running; use Stats for
// cheap concurrent reads.
func (m *Module) Map() *voxelmap.DualVoxelMap { return m.dual }

// OnObservation integrates one observation. Ground-truth poses update the
// current vehicle pose; point-bearing observations are scored against the
// map (when it has content) and then inserted at the current pose.
func (m *Module) OnObservation(o obs.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rp, ok := o.(*obs.RobotPose); ok {
		p := rp.Pose
		m.lastPose = &p
		return nil
	}

	if m.mm.CanComputeLikelihood(o) && !m.mm.IsEmpty() {
		pose := geom.Identity()
		if m.lastPose != nil {
			pose = *m.lastPose
		}
		ll, err := m.mm.Likelihood(o, pose)
		if err != nil {
			return err
		}
		m.logLikSum += ll
		m.logLikFrames++
	}

	consumed, err := m.mm.InsertObservation(o, m.lastPose)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	if !consumed {
		m.droppedKinds++
		return nil
	}
	m.frames++
	return nil
}

// SpinOnce emits a periodic snapshot when due and the map changed since the
// last one.
func (m *Module) SpinOnce() error {
	if m.opts.Store == nil || m.opts.SnapshotEvery <= 0 {
		return nil
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastSnapshot) < m.opts.SnapshotEvery {
		return nil
	}
	if m.dual.IsEmpty() {
		return nil
	}
	finger := m.dual.Fingerprint()
	if finger == m.lastFinger {
		return nil
	}
	id, err := m.opts.Store.InsertSnapshot(m.opts.SessionID, m.dual, "periodic")
	if err != nil {
		return fmt.Errorf("snapshot map: %w", err)
	}
	m.lastSnapshot = now
	m.lastFinger = finger
	m.snapshotCount++
	monitoring.Logf("[Mapper] snapshot %d stored: %s", id, m.dual)
	return nil
}

// FinalSnapshot stores one last snapshot regardless of cadence, e.g. at
// shutdown or end of dataset.
func (m *Module) FinalSnapshot() error {
	if m.opts.Store == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dual.IsEmpty() {
		return nil
	}
	id, err := m.opts.Store.InsertSnapshot(m.opts.SessionID, m.dual, "final")
	if err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	m.snapshotCount++
	monitoring.Logf("[Mapper] final snapshot %d stored: %s", id, m.dual)
	return nil
}

// Stats is a point-in-time summary of mapping progress.
type Stats struct {
	Frames       int
	Voxels       int
	Points       int
	Snapshots    int
	MeanLogLik   float64
	ScoredFrames int
}

// Stats returns current counters. Safe to call concurrently with the spin
// loop.
func (m *Module) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		Frames:       m.frames,
		Voxels:       m.dual.VoxelCount(),
		Points:       m.dual.PointCount(),
		Snapshots:    m.snapshotCount,
		ScoredFrames: m.logLikFrames,
	}
	if m.logLikFrames > 0 {
		s.MeanLogLik = m.logLikSum / float64(m.logLikFrames)
	}
	return s
}
