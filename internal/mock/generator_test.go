package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/features"
	"github.com/neurobot/backend/internal/ingest"
	"github.com/neurobot/backend/internal/record"
)

type fakeProcessor struct {
	mu      sync.Mutex
	samples [][]float64
	err     error
}

func (p *fakeProcessor) Process(_ context.Context, samples []float64) (*ingest.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, samples)
	if p.err != nil {
		return nil, p.err
	}
	return &ingest.Result{Record: &record.Record{ID: int64(len(p.samples)), Mood: "calm"}}, nil
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

func TestGenerator_CyclesChannels(t *testing.T) {
	proc := &fakeProcessor{}
	g := NewGenerator(proc, time.Hour, 1, zap.NewNop())

	for tick := 1; tick <= len(g.channels); tick++ {
		g.emit(context.Background(), tick)
	}

	if proc.count() != len(g.channels) {
		t.Fatalf("processed %d recordings, want %d", proc.count(), len(g.channels))
	}
	for i, ch := range g.channels {
		if got := len(proc.samples[i]); got != ch.length {
			t.Errorf("channel %s produced %d samples, want %d", ch.name, got, ch.length)
		}
	}
}

func TestGenerator_PatternsDiffer(t *testing.T) {
	g := NewGenerator(&fakeProcessor{}, time.Hour, 1, zap.NewNop())

	byName := make(map[string]features.Summary)
	for _, ch := range g.channels {
		byName[ch.name] = features.Compute(g.sample(ch, 3))
	}

	for name, s := range byName {
		if s.Std == 0 {
			t.Errorf("%s: flat signal", name)
		}
	}
	// Bursts triple the amplitude, so the spread dwarfs the steady alpha.
	if byName["focused-beta"].Std <= byName["relaxed-alpha"].Std {
		t.Errorf("burst std %.2f should exceed steady std %.2f",
			byName["focused-beta"].Std, byName["relaxed-alpha"].Std)
	}
	// The blink pushes the maximum well above the rhythm amplitude.
	if byName["blink-artifact"].Max < 100 {
		t.Errorf("artifact max = %.2f, want a blink deflection", byName["blink-artifact"].Max)
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(&fakeProcessor{}, time.Hour, 42, zap.NewNop())
	b := NewGenerator(&fakeProcessor{}, time.Hour, 42, zap.NewNop())

	sa := a.sample(a.channels[0], 1)
	sb := b.sample(b.channels[0], 1)
	for i := range sa {
		if sa[i] != sb[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, sa[i], sb[i])
		}
	}
}

func TestGenerator_ToleratesProcessorErrors(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("database down")}
	g := NewGenerator(proc, time.Hour, 1, zap.NewNop())

	g.emit(context.Background(), 1)
	g.emit(context.Background(), 2)
	if proc.count() != 2 {
		t.Errorf("processed %d, want 2", proc.count())
	}
}

func TestGenerator_StartStops(t *testing.T) {
	proc := &fakeProcessor{}
	g := NewGenerator(proc, 5*time.Millisecond, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("generator produced %d recordings", proc.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	time.Sleep(20 * time.Millisecond)
	settled := proc.count()
	time.Sleep(30 * time.Millisecond)
	if proc.count() != settled {
		t.Error("generator kept running after cancel")
	}
}
