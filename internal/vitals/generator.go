package vitals

import (
	"log/slog"

	"github.com/pscheid92/vitalpulse/internal/domain"
)

// Generator draws readings for one preset. Safe for concurrent use if its source is.
type Generator struct {
	preset     Preset
	source     EntropySource
	onFallback func(error)
}

var _ domain.Generator = (*Generator)(nil)

type Option func(*Generator)

// WithSource replaces the default crypto/rand source.
func WithSource(src EntropySource) Option {
	return func(g *Generator) { g.source = src }
}

// WithFallbackHook is called every time a reading falls back to the preset midpoint.
func WithFallbackHook(fn func(error)) Option {
	return func(g *Generator) { g.onFallback = fn }
}

func NewGenerator(preset Preset, opts ...Option) *Generator {
	g := &Generator{preset: preset, source: NewCryptoSource()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns one reading. It never fails: if the entropy source does, the
// preset's mid-range reading is returned instead.
func (g *Generator) Generate() domain.VitalReading {
	reading, err := g.sample()
	if err != nil {
		slog.Warn("Entropy source failed, emitting mid-range fallback reading", "preset", g.preset.Name, "error", err)
		if g.onFallback != nil {
			g.onFallback(err)
		}
		return g.preset.Midpoint()
	}
	return reading
}

func (g *Generator) sample() (domain.VitalReading, error) {
	var (
		r   domain.VitalReading
		err error
	)
	p := g.preset

	if r.HeartRate, err = g.intIn(p.HeartRate); err != nil {
		return r, err
	}
	if r.HRV, err = g.intIn(p.HRV); err != nil {
		return r, err
	}
	if r.ECG, err = g.floatIn(p.ECG); err != nil {
		return r, err
	}
	if r.Temperature, err = g.floatIn(p.Temperature); err != nil {
		return r, err
	}
	if r.SystolicBP, err = g.intIn(p.SystolicBP); err != nil {
		return r, err
	}
	if r.DiastolicBP, err = g.intIn(p.DiastolicBP); err != nil {
		return r, err
	}
	if r.SpO2, err = g.intIn(p.SpO2); err != nil {
		return r, err
	}
	if r.Steps, err = g.intIn(p.Steps); err != nil {
		return r, err
	}
	return r, nil
}

// intIn samples uniformly from [Low, High], both bounds reachable.
func (g *Generator) intIn(r IntRange) (int, error) {
	u, err := g.source.Uint64()
	if err != nil {
		return 0, err
	}
	span := uint64(r.High-r.Low) + 1
	return r.Low + int(u%span), nil
}

func (g *Generator) floatIn(r FloatRange) (float64, error) {
	u, err := g.source.Uint64()
	if err != nil {
		return 0, err
	}
	// 53 random bits -> [0, 1)
	f := float64(u>>11) / (1 << 53)
	return r.round(r.Low + f*(r.High-r.Low)), nil
}
