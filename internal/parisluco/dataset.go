// Package parisluco replays the Paris-Luco lidar dataset: a directory of
// per-frame PLY point clouds at a fixed scan period, with an optional
// ground-truth trajectory of lidar translations. It publishes timestamped
// observations to every ObservationSink attached to the owning system.
package parisluco

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-robotics/voxelslam/internal/geom"
	"github.com/meridian-robotics/voxelslam/internal/monitoring"
	"github.com/meridian-robotics/voxelslam/internal/obs"
	"github.com/meridian-robotics/voxelslam/internal/runtime"
	"github.com/meridian-robotics/voxelslam/internal/timeutil"
)

// ModuleName is the kind name the dataset registers under.
const ModuleName = "paris_luco_dataset"

// lidarPeriod is the scan period of the dataset's lidar, in seconds.
const lidarPeriod = 0.1

// Dataset is the replayer module. It follows the runtime two-phase
// lifecycle: InitializeCommon parses configuration, Initialize indexes the
// sequence and preloads the first frame.
type Dataset struct {
	runtime.BaseModule

	cfg    Config
	seqDir string

	lidarFiles []string
	timestamps []float64

	// gtTranslations holds one lidar translation per frame when the
	// sequence ships a ground-truth trajectory.
	gtTranslations [][3]float64

	sys   *runtime.System
	sinks []runtime.ObservationSink

	clock timeutil.Clock

	readAhead map[int]*obs.PointCloud
	nextIndex int

	replayStarted bool
	replayBegin   time.Time

	initialized bool

	lastProgressLog time.Time
	lastEndLog      time.Time
}

// New returns an unconfigured dataset module.
func New() *Dataset {
	return &Dataset{
		readAhead: make(map[int]*obs.PointCloud),
		clock:     timeutil.RealClock{},
	}
}

func (d *Dataset) Name() string { return ModuleName }

// AttachSystem stores the owning system for sink discovery.
func (d *Dataset) AttachSystem(s *runtime.System) { d.sys = s }

// InitializeCommon parses the YAML config block.
func (d *Dataset) InitializeCommon(cfgBlock string) error {
	cfg, err := ParseConfig(cfgBlock)
	if err != nil {
		return err
	}
	d.cfg = cfg
	return nil
}

// Initialize indexes the sequence directory, builds the timestamp list,
// loads the ground-truth trajectory if present, and reads ahead the first
// frame so the first SpinOnce publishes without a load stall.
func (d *Dataset) Initialize(string) error {
	d.seqDir = filepath.Join(d.cfg.BaseDir, d.cfg.Sequence)
	info, err := os.Stat(d.seqDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("dataset sequence directory %s does not exist", d.seqDir)
	}

	d.lidarFiles, err = listFilesByExt(filepath.Join(d.seqDir, "frames"), ".ply")
	if err != nil {
		return err
	}
	if len(d.lidarFiles) == 0 {
		monitoring.Logf("[ParisLuco] LIDAR scans: not found under %s", d.seqDir)
	} else {
		monitoring.Logf("[ParisLuco] LIDAR scans: found (%d)", len(d.lidarFiles))
	}

	d.timestamps = make([]float64, len(d.lidarFiles))
	t := 0.0
	for i := range d.timestamps {
		t += lidarPeriod
		d.timestamps[i] = t
	}

	gtFile := filepath.Join(d.seqDir, "gt_traj_lidar.txt")
	if _, err := os.Stat(gtFile); err == nil {
		d.gtTranslations, err = loadTranslations(gtFile)
		if err != nil {
			return err
		}
		if len(d.gtTranslations) != len(d.lidarFiles) {
			return fmt.Errorf("ground truth rows (%d) do not match frame count (%d)",
				len(d.gtTranslations), len(d.lidarFiles))
		}
		monitoring.Logf("[ParisLuco] Ground truth translations: found")
	} else {
		monitoring.Logf("[ParisLuco] Ground truth translations: not found, expected %s", gtFile)
	}

	if d.sys != nil {
		d.sinks = runtime.FindByInterface[runtime.ObservationSink](d.sys)
	}

	if err := d.readAheadSome(); err != nil {
		return err
	}
	d.initialized = true
	return nil
}

// SpinOnce publishes every observation due at the current warped replay
// time.
func (d *Dataset) SpinOnce() error {
	if !d.initialized {
		return fmt.Errorf("dataset module not initialized")
	}
	now := d.clock.Now()
	if !d.replayStarted {
		d.replayBegin = now
		d.replayStarted = true
	}
	t := now.Sub(d.replayBegin).Seconds() * d.cfg.TimeWarpScale

	if d.nextIndex >= len(d.timestamps) {
		if now.Sub(d.lastEndLog) > 10*time.Second {
			monitoring.Logf("[ParisLuco] End of dataset reached, nothing else to publish")
			d.lastEndLog = now
		}
		return nil
	}
	if len(d.timestamps) > 0 && now.Sub(d.lastProgressLog) > 5*time.Second {
		monitoring.Logf("[ParisLuco] Replay progress: %d / %d (%.02f%%)",
			d.nextIndex, len(d.timestamps), 100.0*float64(d.nextIndex)/float64(len(d.timestamps)))
		d.lastProgressLog = now
	}

	for d.nextIndex < len(d.timestamps) && t >= d.timestamps[d.nextIndex] {
		step := d.nextIndex
		pc, err := d.loadLidar(step)
		if err != nil {
			return err
		}
		if err := d.publish(pc); err != nil {
			return err
		}
		if step < len(d.gtTranslations) {
			tr := d.gtTranslations[step]
			if err := d.publish(&obs.RobotPose{
				Label: "ground_truth",
				Stamp: pc.Stamp,
				Pose:  geom.FromTranslation(tr[0], tr[1], tr[2]),
			}); err != nil {
				return err
			}
		}
		delete(d.readAhead, step)
		d.nextIndex++
	}

	return d.readAheadSome()
}

// Done reports end of dataset, letting runtime.System.Run exit.
func (d *Dataset) Done() bool {
	return d.initialized && d.nextIndex >= len(d.timestamps)
}

// DatasetSize returns the number of frames in the sequence.
func (d *Dataset) DatasetSize() int { return len(d.timestamps) }

// Observations returns the observations of one timestep for random access,
// bypassing the replay clock.
func (d *Dataset) Observations(step int) ([]obs.Observation, error) {
	if !d.initialized {
		return nil, fmt.Errorf("dataset module not initialized")
	}
	if step < 0 || step >= len(d.timestamps) {
		return nil, fmt.Errorf("timestep %d out of range [0,%d)", step, len(d.timestamps))
	}
	pc, err := d.loadLidar(step)
	if err != nil {
		return nil, err
	}
	out := []obs.Observation{pc}
	if step < len(d.gtTranslations) {
		tr := d.gtTranslations[step]
		out = append(out, &obs.RobotPose{
			Label: "ground_truth",
			Stamp: pc.Stamp,
			Pose:  geom.FromTranslation(tr[0], tr[1], tr[2]),
		})
	}
	return out, nil
}

func (d *Dataset) publish(o obs.Observation) error {
	for _, s := range d.sinks {
		if err := s.OnObservation(o); err != nil {
			return fmt.Errorf("observation sink: %w", err)
		}
	}
	return nil
}

// loadLidar returns the point cloud of one timestep, serving from the
// read-ahead buffer when possible. Per-point times are shifted by half a
// scan period so the frame timestamp sits at the sweep center.
func (d *Dataset) loadLidar(step int) (*obs.PointCloud, error) {
	if pc, ok := d.readAhead[step]; ok {
		return pc, nil
	}
	path := filepath.Join(d.seqDir, "frames", d.lidarFiles[step])
	cloud, err := loadPLY(path)
	if err != nil {
		return nil, err
	}

	times := cloud.Times
	if len(times) > 0 {
		shifted := make([]float64, len(times))
		for i, tv := range times {
			shifted[i] = tv - 0.5*lidarPeriod
		}
		times = shifted
	}

	pc := &obs.PointCloud{
		Label:       "lidar",
		Stamp:       stampFor(d.timestamps[step]),
		SensorPose:  geom.Identity(),
		Xs:          cloud.Xs,
		Ys:          cloud.Ys,
		Zs:          cloud.Zs,
		Intensities: cloud.Intensities,
		Times:       times,
	}
	d.readAhead[step] = pc
	return pc, nil
}

// readAheadSome preloads the next pending frame to hide load latency from
// the replay loop.
func (d *Dataset) readAheadSome() error {
	if d.nextIndex >= len(d.lidarFiles) {
		return nil
	}
	if _, ok := d.readAhead[d.nextIndex]; ok {
		return nil
	}
	_, err := d.loadLidar(d.nextIndex)
	return err
}

// stampFor converts a dataset-relative time in seconds to an absolute
// timestamp on the dataset epoch.
func stampFor(t float64) time.Time {
	return time.Unix(0, int64(t*float64(time.Second)))
}

func listFilesByExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// loadTranslations reads a whitespace-separated text matrix with one
// "x y z" row per frame.
func loadTranslations(path string) ([][3]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out [][3]float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s:%d: expected 3 columns, got %d", path, line, len(fields))
		}
		var row [3]float64
		for i, fv := range fields {
			row[i], err = strconv.ParseFloat(fv, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
		}
		out = append(out, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
