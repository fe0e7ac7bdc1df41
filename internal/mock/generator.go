package mock

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/ingest"
)

// SampleRate is the rate, in Hz, of generated recordings.
const SampleRate = 256

// Processor runs one sample through the ingest pipeline.
type Processor interface {
	Process(ctx context.Context, samples []float64) (*ingest.Result, error)
}

type mockChannel struct {
	name      string
	pattern   string
	freq      float64 // dominant rhythm, Hz
	amplitude float64 // microvolts
	length    int     // samples per recording
	phase     float64
}

// Generator feeds synthetic EEG recordings through a Processor on a fixed
// interval, so the live feed can be demonstrated without a headset.
type Generator struct {
	proc     Processor
	interval time.Duration
	log      *zap.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	channels []*mockChannel
}

func NewGenerator(proc Processor, interval time.Duration, seed int64, log *zap.Logger) *Generator {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Generator{
		proc:     proc,
		interval: interval,
		log:      log,
		rng:      rand.New(rand.NewSource(seed)),
		channels: []*mockChannel{
			{name: "relaxed-alpha", pattern: "steady", freq: 10, amplitude: 40, length: SampleRate},
			{name: "focused-beta", pattern: "burst", freq: 20, amplitude: 15, length: SampleRate},
			{name: "drowsy-theta", pattern: "drift", freq: 6, amplitude: 60, length: SampleRate * 2},
			{name: "blink-artifact", pattern: "artifact", freq: 10, amplitude: 25, length: SampleRate},
		},
	}
}

func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			g.emit(ctx, tick)
		}
	}
}

// emit sends one recording for the channel whose turn it is.
func (g *Generator) emit(ctx context.Context, tick int) {
	n := len(g.channels)
	ch := g.channels[(tick-1)%n]
	samples := g.sample(ch, (tick-1)/n)

	res, err := g.proc.Process(ctx, samples)
	if err != nil {
		g.log.Warn("mock sample rejected", zap.String("channel", ch.name), zap.Error(err))
		return
	}
	g.log.Debug("mock sample processed",
		zap.String("channel", ch.name),
		zap.Int64("record", res.Record.ID),
		zap.String("mood", res.Record.Mood))
}

// sample renders the round'th recording of ch.
func (g *Generator) sample(ch *mockChannel, round int) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]float64, ch.length)
	for i := range out {
		t := float64(i) / SampleRate
		amp := ch.amplitude

		switch ch.pattern {
		case "burst":
			// High-amplitude bursts every fourth recording.
			if round%4 == 3 {
				amp *= 3
			}
		case "drift":
			// Slow baseline wander on top of the rhythm.
			out[i] += 20 * math.Sin(2*math.Pi*0.5*t+ch.phase)
		case "artifact":
			// A blink: a large positive deflection near the start.
			if i >= SampleRate/8 && i < SampleRate/4 {
				out[i] += 150 * math.Sin(math.Pi*float64(i-SampleRate/8)/float64(SampleRate/8))
			}
		}

		out[i] += amp*math.Sin(2*math.Pi*ch.freq*t+ch.phase) + g.rng.NormFloat64()*5
	}
	ch.phase = math.Mod(ch.phase+2*math.Pi*ch.freq*float64(ch.length)/SampleRate, 2*math.Pi)
	return out
}
