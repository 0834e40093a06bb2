package govern

import (
	"testing"

	"github.com/nametidy/nametidy/internal/logging"
)

// fakeSampler replays a scripted sequence of samples.
type fakeSampler struct {
	samples []Sample
	idx     int
}

func (f *fakeSampler) Sample() (Sample, error) {
	s := f.samples[f.idx]
	if f.idx < len(f.samples)-1 {
		f.idx++
	}
	return s, nil
}

func newTestGovernor(sampler Sampler, hysteresis, memoryLimitMB int) *Governor {
	return New(Options{
		Sampler:       sampler,
		Hysteresis:    hysteresis,
		MemoryLimitMB: memoryLimitMB,
		Logger:        logging.Nop(),
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   Level
	}{
		{"idle", Sample{CPUPercent: 10, MemUsedPercent: 30}, MaxPerformance},
		{"moderate_cpu", Sample{CPUPercent: 60, MemUsedPercent: 30}, Balanced},
		{"moderate_mem", Sample{CPUPercent: 10, MemUsedPercent: 70}, Balanced},
		{"high_cpu", Sample{CPUPercent: 75, MemUsedPercent: 30}, Conservative},
		{"high_mem", Sample{CPUPercent: 10, MemUsedPercent: 85}, Conservative},
		{"saturated_cpu", Sample{CPUPercent: 95, MemUsedPercent: 30}, BatterySaver},
		{"saturated_mem", Sample{CPUPercent: 10, MemUsedPercent: 95}, BatterySaver},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.sample); got != tc.want {
				t.Errorf("classify(%+v) = %v, want %v", tc.sample, got, tc.want)
			}
		})
	}
}

func TestHysteresisBlocksSingleSpike(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{
		{CPUPercent: 95},
		{CPUPercent: 10},
	}}
	g := newTestGovernor(sampler, 3, 0)

	g.Observe()
	if level, _ := g.Current(); level != MaxPerformance {
		t.Errorf("level after one spike = %v, want max-performance held", level)
	}
	g.Observe()
	g.Observe()
	if level, _ := g.Current(); level != MaxPerformance {
		t.Errorf("level after spike subsided = %v, want max-performance", level)
	}
}

func TestSustainedPressureTransitions(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{
		{CPUPercent: 95},
		{CPUPercent: 92},
		{CPUPercent: 96},
	}}
	g := newTestGovernor(sampler, 3, 0)

	var gotLevel Level
	var gotProfile Profile
	calls := 0
	g.OnTransition(func(level Level, profile Profile) {
		gotLevel = level
		gotProfile = profile
		calls++
	})

	g.Observe()
	g.Observe()
	g.Observe()

	if level, _ := g.Current(); level != BatterySaver {
		t.Fatalf("level after sustained pressure = %v, want battery-saver", level)
	}
	if calls != 1 {
		t.Errorf("transition callback ran %d times, want 1", calls)
	}
	if gotLevel != BatterySaver || gotProfile.Workers != 1 {
		t.Errorf("callback got (%v, %+v), want battery-saver with 1 worker", gotLevel, gotProfile)
	}
	if g.Downshifts() != 1 {
		t.Errorf("Downshifts() = %d, want 1", g.Downshifts())
	}
}

func TestChangedCandidateResetsStreak(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{
		{CPUPercent: 95}, // battery-saver candidate
		{CPUPercent: 75}, // conservative candidate, streak resets
		{CPUPercent: 76},
		{CPUPercent: 74},
	}}
	g := newTestGovernor(sampler, 3, 0)

	g.Observe()
	g.Observe()
	g.Observe()
	if level, _ := g.Current(); level != MaxPerformance {
		t.Fatalf("level = %v, want max-performance until a candidate holds", level)
	}
	g.Observe()
	if level, _ := g.Current(); level != Conservative {
		t.Errorf("level = %v, want conservative after three agreeing samples", level)
	}
}

func TestRecoveryUpshifts(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{
		{CPUPercent: 95}, {CPUPercent: 95}, {CPUPercent: 95},
		{CPUPercent: 10}, {CPUPercent: 10}, {CPUPercent: 10},
	}}
	g := newTestGovernor(sampler, 3, 0)

	for i := 0; i < 6; i++ {
		g.Observe()
	}
	if level, _ := g.Current(); level != MaxPerformance {
		t.Errorf("level after recovery = %v, want max-performance", level)
	}
	// The upshift does not count as a downshift.
	if g.Downshifts() != 1 {
		t.Errorf("Downshifts() = %d, want 1", g.Downshifts())
	}
}

func TestMemoryCeilingForcesEviction(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{
		{CPUPercent: 10, HeapMB: 300},
	}}
	g := newTestGovernor(sampler, 3, 256)

	evictions := 0
	g.RegisterEvictor(func() { evictions++ })

	g.Observe()
	if evictions != 1 {
		t.Errorf("evictions = %d, want 1 on ceiling breach", evictions)
	}

	// Eviction fires even though the level never changed.
	if level, _ := g.Current(); level != MaxPerformance {
		t.Errorf("level = %v, want unchanged max-performance", level)
	}
}

func TestNoEvictionUnderCeiling(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{
		{CPUPercent: 10, HeapMB: 100},
	}}
	g := newTestGovernor(sampler, 3, 256)

	evictions := 0
	g.RegisterEvictor(func() { evictions++ })
	g.Observe()
	if evictions != 0 {
		t.Errorf("evictions = %d, want 0 under the ceiling", evictions)
	}
}

func TestLevelThresholdTightensCeiling(t *testing.T) {
	sampler := &fakeSampler{samples: []Sample{
		{CPUPercent: 75, HeapMB: 200},
		{CPUPercent: 76, HeapMB: 200},
		{CPUPercent: 74, HeapMB: 200},
		{CPUPercent: 75, HeapMB: 200},
	}}
	g := newTestGovernor(sampler, 3, 256)

	evictions := 0
	g.RegisterEvictor(func() { evictions++ })

	// At max-performance the full 256MB limit applies; 200MB is fine.
	g.Observe()
	if evictions != 0 {
		t.Fatalf("evictions = %d before any transition, want 0", evictions)
	}

	g.Observe()
	g.Observe()
	if level, _ := g.Current(); level != Conservative {
		t.Fatalf("level = %v, want conservative after sustained pressure", level)
	}

	// The conservative profile claims half the limit, so the same heap now
	// breaches the ceiling.
	g.Observe()
	if evictions != 1 {
		t.Errorf("evictions = %d at conservative level, want 1", evictions)
	}
}

func TestDefaultProfilesOrdering(t *testing.T) {
	profiles := DefaultProfiles(256)
	if profiles[MaxPerformance].Workers < profiles[BatterySaver].Workers {
		t.Error("max-performance has fewer workers than battery-saver")
	}
	if profiles[BatterySaver].Workers != 1 {
		t.Errorf("battery-saver workers = %d, want 1", profiles[BatterySaver].Workers)
	}
	if profiles[MaxPerformance].ChunkSize <= profiles[BatterySaver].ChunkSize {
		t.Error("chunk sizes not ordered by level aggressiveness")
	}
}
