// Command slamd replays a lidar dataset through the SLAM module runtime,
// accumulating the scans into a dual voxel map and snapshotting it to a
// SQLite store.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-robotics/voxelslam/internal/config"
	"github.com/meridian-robotics/voxelslam/internal/mapper"
	"github.com/meridian-robotics/voxelslam/internal/mapstore"
	"github.com/meridian-robotics/voxelslam/internal/parisluco"
	"github.com/meridian-robotics/voxelslam/internal/runtime"
	"github.com/meridian-robotics/voxelslam/internal/version"
)

var (
	configPath    = flag.String("config", "", "YAML config file for the dataset module (required)")
	tuningPath    = flag.String("tuning", "", "Optional JSON tuning file overriding map parameters")
	dbFile        = flag.String("db", "", "Path to the snapshot SQLite database (empty: no persistence)")
	sessionLabel  = flag.String("session-label", "slamd", "Label stored with the snapshot session")
	decimSize     = flag.Float64("decim", 0.20, "Voxel decimation size in meters")
	nnRadius      = flag.Float64("nn-radius", 0.60, "Maximum nearest-neighbor search radius in meters")
	maxPoints     = flag.Uint("max-points", 0, "Maximum points per voxel (0 = unlimited)")
	snapshotEvery = flag.Duration("snapshot-every", 30*time.Second, "Periodic snapshot cadence (0 disables)")
	spinPeriod    = flag.Duration("spin-period", 10*time.Millisecond, "Module spin tick period")
	logInterval   = flag.Duration("log-interval", 2*time.Second, "Statistics logging interval")
	saveText      = flag.String("save-text", "", "Write the final map as an x y z text file")
)

func main() {
	flag.Parse()
	log.Printf("[slamd] version=%s git=%s", version.Version, version.GitSHA)
	if *configPath == "" {
		log.Fatal("[slamd] -config is required")
	}
	cfgBytes, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("[slamd] read config: %v", err)
	}

	mapperOpts := mapper.Options{
		DecimationSize:    float32(*decimSize),
		MaxNNRadius:       float32(*nnRadius),
		MaxPointsPerVoxel: uint32(*maxPoints),
		SnapshotEvery:     *snapshotEvery,
	}
	var tuning *config.TuningConfig
	if *tuningPath != "" {
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("[slamd] %v", err)
		}
		mapperOpts.DecimationSize = float32(config.GetFloat(tuning.DecimationSize, *decimSize))
		mapperOpts.MaxNNRadius = float32(config.GetFloat(tuning.MaxNNRadius, *nnRadius))
		mapperOpts.MaxPointsPerVoxel = config.GetUint32(tuning.MaxPointsPerVoxel, uint32(*maxPoints))
		mapperOpts.SnapshotEvery = tuning.GetSnapshotEvery(*snapshotEvery)
	}

	var (
		store     *mapstore.Store
		sessionID string
	)
	if *dbFile != "" {
		store, err = mapstore.Open(*dbFile)
		if err != nil {
			log.Fatalf("[slamd] open map store: %v", err)
		}
		defer store.Close()
		sessionID, err = store.BeginSession(*sessionLabel)
		if err != nil {
			log.Fatalf("[slamd] begin session: %v", err)
		}
		log.Printf("[slamd] snapshot session %s in %s", sessionID, *dbFile)
	}

	mapperOpts.Store = store
	mapperOpts.SessionID = sessionID
	builder, err := mapper.New(mapperOpts)
	if err != nil {
		log.Fatalf("[slamd] configure mapper: %v", err)
	}
	if tuning != nil {
		lo := builder.Map().LikelihoodOpts
		lo.SigmaDist = config.GetFloat(tuning.SigmaDist, lo.SigmaDist)
		lo.MaxCorrDistance = config.GetFloat(tuning.MaxCorrDistance, lo.MaxCorrDistance)
		lo.Decimation = config.GetUint32(tuning.LikelihoodDecimation, lo.Decimation)
		builder.Map().LikelihoodOpts = lo
	}

	// Explicit module registration; nothing self-registers at load time.
	registry := runtime.NewRegistry()
	if err := registry.Register(parisluco.ModuleName, func() runtime.Module { return parisluco.New() }); err != nil {
		log.Fatalf("[slamd] register modules: %v", err)
	}
	dataset, err := registry.Create(parisluco.ModuleName)
	if err != nil {
		log.Fatalf("[slamd] create dataset module: %v", err)
	}

	sys := runtime.NewSystem()
	sys.Add(builder)
	sys.Add(dataset)
	if err := sys.Initialize(map[string]string{
		parisluco.ModuleName: string(cfgBytes),
	}); err != nil {
		log.Fatalf("[slamd] initialize: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		ticker := time.NewTicker(*logInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := builder.Stats()
				log.Printf("[slamd] frames=%d voxels=%d points=%d snapshots=%d mean_loglik=%.1f",
					s.Frames, s.Voxels, s.Points, s.Snapshots, s.MeanLogLik)
			}
		}
	}()

	if err := sys.Run(ctx, *spinPeriod); err != nil {
		log.Fatalf("[slamd] run: %v", err)
	}
	stop()
	<-statsDone

	if err := builder.FinalSnapshot(); err != nil {
		log.Printf("[slamd] final snapshot failed: %v", err)
	}
	if *saveText != "" {
		if err := builder.Map().SaveToTextFile(*saveText); err != nil {
			log.Printf("[slamd] save text: %v", err)
		} else {
			log.Printf("[slamd] map written to %s", *saveText)
		}
	}
	s := builder.Stats()
	log.Printf("[slamd] done: frames=%d voxels=%d points=%d snapshots=%d",
		s.Frames, s.Voxels, s.Points, s.Snapshots)
}
