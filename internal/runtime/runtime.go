// Package runtime hosts the pluggable modules of the SLAM system: dataset
// sources, map builders and any other unit that wants a scheduling tick.
// Modules are registered explicitly by the host before anything is
// initialized; there is no load-time self-registration.
package runtime

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/meridian-robotics/voxelslam/internal/obs"
)

// Module is the unit of execution. The host invokes InitializeCommon
// followed by Initialize on every module before the first SpinOnce; modules
// with no kind-specific setup leave Initialize empty. The system name
// server (FindByInterface) is functional from InitializeCommon onward.
type Module interface {
	Name() string
	InitializeCommon(cfgBlock string) error
	Initialize(cfgBlock string) error
	SpinOnce() error
}

// BaseModule provides no-op lifecycle methods for modules that only need a
// subset of the interface. Embed it and override what matters.
type BaseModule struct{}

func (BaseModule) InitializeCommon(string) error { return nil }
func (BaseModule) Initialize(string) error       { return nil }
func (BaseModule) SpinOnce() error               { return nil }

// SystemAware modules receive the owning system before initialization so
// they can look up siblings during Initialize*.
type SystemAware interface {
	AttachSystem(*System)
}

// Completer modules report when they have no more work, letting Run exit
// once every completer is done (e.g. a dataset replayer at end of data).
type Completer interface {
	Done() bool
}

// Factory builds a module instance.
type Factory func() Module

// Registry maps module kind names to factories. The host fills it with an
// explicit registration routine at startup.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a kind name. Duplicate names are an error.
func (r *Registry) Register(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[kind]; dup {
		return fmt.Errorf("module kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// Create instantiates a module by kind name.
func (r *Registry) Create(kind string) (Module, error) {
	r.mu.Lock()
	f := r.factories[kind]
	r.mu.Unlock()
	if f == nil {
		return nil, fmt.Errorf("unknown module kind %q", kind)
	}
	return f(), nil
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// System owns a set of live modules and drives their spin loop.
type System struct {
	mu          sync.Mutex
	modules     []Module
	initialized bool
}

// NewSystem returns an empty system.
func NewSystem() *System { return &System{} }

// Add attaches a constructed module. Must happen before Initialize.
func (s *System) Add(m Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = append(s.modules, m)
}

// Modules returns the attached modules in attachment order.
func (s *System) Modules() []Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Module, len(s.modules))
	copy(out, s.modules)
	return out
}

// FindByInterface returns every attached module satisfying the interface
// type T. It is the name-server lookup: usable from InitializeCommon
// onward, since the system attaches itself to SystemAware modules before
// any initialization runs.
func FindByInterface[T any](s *System) []T {
	var out []T
	for _, m := range s.Modules() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Initialize runs the two-phase initialization over all modules in
// attachment order, feeding each its config block from cfgByName (missing
// entries get an empty block).
func (s *System) Initialize(cfgByName map[string]string) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return fmt.Errorf("system already initialized")
	}
	modules := make([]Module, len(s.modules))
	copy(modules, s.modules)
	s.mu.Unlock()

	for _, m := range modules {
		if aware, ok := m.(SystemAware); ok {
			aware.AttachSystem(s)
		}
	}
	for _, m := range modules {
		cfg := cfgByName[m.Name()]
		if err := m.InitializeCommon(cfg); err != nil {
			return fmt.Errorf("module %s: initialize common: %w", m.Name(), err)
		}
		if err := m.Initialize(cfg); err != nil {
			return fmt.Errorf("module %s: initialize: %w", m.Name(), err)
		}
		log.Printf("[System] initialized module %s", m.Name())
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// SpinOnce ticks every module once, in attachment order. The first module
// error aborts the tick.
func (s *System) SpinOnce() error {
	for _, m := range s.Modules() {
		if err := m.SpinOnce(); err != nil {
			return fmt.Errorf("module %s: spin: %w", m.Name(), err)
		}
	}
	return nil
}

// Done reports whether every Completer module has finished. A system with
// no completers never reports done.
func (s *System) Done() bool {
	completers := FindByInterface[Completer](s)
	if len(completers) == 0 {
		return false
	}
	for _, c := range completers {
		if !c.Done() {
			return false
		}
	}
	return true
}

// Run spins all modules on the given period until the context is
// cancelled, a module returns an error, or every Completer module reports
// done. Context cancellation is a normal shutdown and returns nil.
func (s *System) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[System] shutdown requested")
			return nil
		case <-ticker.C:
			if err := s.SpinOnce(); err != nil {
				return err
			}
			if s.Done() {
				log.Printf("[System] all modules report done")
				return nil
			}
		}
	}
}

// ObservationSink receives observations published by dataset sources.
// Modules implementing it are discovered through FindByInterface.
type ObservationSink interface {
	OnObservation(o obs.Observation) error
}
