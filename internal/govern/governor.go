// Package govern watches CPU and memory pressure and maps it onto a small
// ordered set of performance levels. Level transitions retune the scanner
// chunk size and the scheduler concurrency; a breached memory ceiling
// forces cache eviction immediately, outside the normal sampling cadence.
package govern

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Level orders the performance profiles from most to least aggressive.
type Level int

const (
	MaxPerformance Level = iota
	Balanced
	Conservative
	BatterySaver
)

func (l Level) String() string {
	switch l {
	case MaxPerformance:
		return "max-performance"
	case Balanced:
		return "balanced"
	case Conservative:
		return "conservative"
	case BatterySaver:
		return "battery-saver"
	default:
		return "unknown"
	}
}

// Profile is the tuning set applied at a level.
type Profile struct {
	Workers           int
	ChunkSize         int
	BatchSize         int
	MemoryThresholdMB int
}

// DefaultProfiles derives per-level profiles from the CPU count and the
// configured memory limit.
func DefaultProfiles(memoryLimitMB int) map[Level]Profile {
	cpus := runtime.NumCPU()
	half := cpus / 2
	if half < 1 {
		half = 1
	}
	quarter := cpus / 4
	if quarter < 2 {
		quarter = 2
	}
	if quarter > cpus {
		quarter = cpus
	}
	return map[Level]Profile{
		MaxPerformance: {Workers: cpus, ChunkSize: 512, BatchSize: 128, MemoryThresholdMB: memoryLimitMB},
		Balanced:       {Workers: half, ChunkSize: 256, BatchSize: 64, MemoryThresholdMB: memoryLimitMB * 3 / 4},
		Conservative:   {Workers: quarter, ChunkSize: 128, BatchSize: 32, MemoryThresholdMB: memoryLimitMB / 2},
		BatterySaver:   {Workers: 1, ChunkSize: 64, BatchSize: 16, MemoryThresholdMB: memoryLimitMB / 4},
	}
}

// Sample is one observation of system and process pressure.
type Sample struct {
	CPUPercent     float64
	MemUsedPercent float64
	HeapMB         float64
}

// Sampler produces pressure samples. Tests inject a deterministic one.
type Sampler interface {
	Sample() (Sample, error)
}

// SystemSampler reads the host via gopsutil and the process heap via the
// runtime.
type SystemSampler struct{}

// Sample implements Sampler.
func (SystemSampler) Sample() (Sample, error) {
	var s Sample

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return s, err
	}
	if len(percents) > 0 {
		s.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return s, err
	}
	s.MemUsedPercent = vm.UsedPercent

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapMB = float64(ms.HeapAlloc) / (1 << 20)
	return s, nil
}

// Options configures a Governor.
type Options struct {
	Sampler  Sampler
	Interval time.Duration
	// Hysteresis is how many consecutive samples must agree before the
	// level actually changes, so noisy samples cannot cause oscillation.
	Hysteresis    int
	Profiles      map[Level]Profile
	MemoryLimitMB int
	Logger        zerolog.Logger
}

// Governor runs the sampling loop.
type Governor struct {
	sampler    Sampler
	interval   time.Duration
	hysteresis int
	profiles   map[Level]Profile
	ceilingMB  float64
	log        zerolog.Logger

	mu          sync.Mutex
	level       Level
	candidate   Level
	streak      int
	transitions []func(Level, Profile)
	evictors    []func()
	downshifts  int
}

// New builds a Governor starting at MaxPerformance.
func New(opts Options) *Governor {
	if opts.Sampler == nil {
		opts.Sampler = SystemSampler{}
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Hysteresis <= 0 {
		opts.Hysteresis = 3
	}
	if opts.Profiles == nil {
		opts.Profiles = DefaultProfiles(opts.MemoryLimitMB)
	}
	return &Governor{
		sampler:    opts.Sampler,
		interval:   opts.Interval,
		hysteresis: opts.Hysteresis,
		profiles:   opts.Profiles,
		ceilingMB:  float64(opts.MemoryLimitMB),
		log:        opts.Logger,
		level:      MaxPerformance,
		candidate:  MaxPerformance,
	}
}

// Current returns the active level and its profile.
func (g *Governor) Current() (Level, Profile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level, g.profiles[g.level]
}

// Downshifts counts transitions toward a more conservative level.
func (g *Governor) Downshifts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.downshifts
}

// OnTransition registers fn to run whenever the level changes.
func (g *Governor) OnTransition(fn func(Level, Profile)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transitions = append(g.transitions, fn)
}

// RegisterEvictor registers a cache-eviction hook for ceiling breaches.
func (g *Governor) RegisterEvictor(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictors = append(g.evictors, fn)
}

// Run samples until ctx ends. Call it on its own goroutine.
func (g *Governor) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Observe()
		}
	}
}

// Observe takes one sample and applies its consequences. Exposed so tests
// can drive the governor without real time.
func (g *Governor) Observe() {
	sample, err := g.sampler.Sample()
	if err != nil {
		g.log.Debug().Err(err).Msg("resource sample failed")
		return
	}
	g.ObserveSample(sample)
}

// ObserveSample applies one already-taken sample, for callers that measure
// pressure themselves.
func (g *Governor) ObserveSample(sample Sample) {
	if ceiling := g.effectiveCeiling(); ceiling > 0 && sample.HeapMB > ceiling {
		g.forceEviction(sample, ceiling)
	}

	target := classify(sample)
	g.applyClassification(target)
}

// effectiveCeiling is the tighter of the global memory limit and the active
// profile's threshold, so a conservative level claims a smaller heap.
func (g *Governor) effectiveCeiling() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ceiling := g.ceilingMB
	if p, ok := g.profiles[g.level]; ok && p.MemoryThresholdMB > 0 {
		threshold := float64(p.MemoryThresholdMB)
		if ceiling <= 0 || threshold < ceiling {
			ceiling = threshold
		}
	}
	return ceiling
}

// forceEviction runs the registered evictors and a GC pass regardless of
// where the sampling cadence stands.
func (g *Governor) forceEviction(sample Sample, ceiling float64) {
	g.mu.Lock()
	evictors := make([]func(), len(g.evictors))
	copy(evictors, g.evictors)
	g.mu.Unlock()

	g.log.Warn().Float64("heap_mb", sample.HeapMB).Float64("ceiling_mb", ceiling).
		Msg("memory ceiling exceeded, forcing cache eviction")
	for _, evict := range evictors {
		evict()
	}
	runtime.GC()
}

func (g *Governor) applyClassification(target Level) {
	g.mu.Lock()

	if target == g.level {
		g.candidate = target
		g.streak = 0
		g.mu.Unlock()
		return
	}
	if target != g.candidate {
		g.candidate = target
		g.streak = 1
		g.mu.Unlock()
		return
	}
	g.streak++
	if g.streak < g.hysteresis {
		g.mu.Unlock()
		return
	}

	previous := g.level
	g.level = target
	g.streak = 0
	if target > previous {
		g.downshifts++
	}
	profile := g.profiles[target]
	transitions := make([]func(Level, Profile), len(g.transitions))
	copy(transitions, g.transitions)
	g.mu.Unlock()

	g.log.Info().Str("from", previous.String()).Str("to", target.String()).
		Int("workers", profile.Workers).Int("chunk_size", profile.ChunkSize).
		Msg("performance level transition")
	for _, fn := range transitions {
		fn(target, profile)
	}
}

// classify maps one sample onto a level. Thresholds are deliberately
// coarse; hysteresis smooths the edges.
func classify(s Sample) Level {
	switch {
	case s.CPUPercent > 85 || s.MemUsedPercent > 90:
		return BatterySaver
	case s.CPUPercent > 70 || s.MemUsedPercent > 80:
		return Conservative
	case s.CPUPercent > 50 || s.MemUsedPercent > 65:
		return Balanced
	default:
		return MaxPerformance
	}
}
