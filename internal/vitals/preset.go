package vitals

import (
	"fmt"
	"math"
	"strings"

	"github.com/pscheid92/vitalpulse/internal/domain"
)

// IntRange is a closed interval of whole units.
type IntRange struct {
	Low  int
	High int
}

func (r IntRange) contains(v int) bool { return v >= r.Low && v <= r.High }

func (r IntRange) mid() int { return r.Low + (r.High-r.Low)/2 }

// FloatRange is a closed interval rounded to a fixed number of decimals.
type FloatRange struct {
	Low      float64
	High     float64
	Decimals int
}

func (r FloatRange) contains(v float64) bool { return v >= r.Low && v <= r.High }

func (r FloatRange) round(v float64) float64 {
	p := math.Pow10(r.Decimals)
	v = math.Round(v*p) / p
	return math.Min(math.Max(v, r.Low), r.High)
}

func (r FloatRange) mid() float64 { return r.round(r.Low + (r.High-r.Low)/2) }

// Preset is a named set of physiological ranges.
type Preset struct {
	Name        string
	HeartRate   IntRange
	HRV         IntRange
	ECG         FloatRange
	Temperature FloatRange
	SystolicBP  IntRange
	DiastolicBP IntRange
	SpO2        IntRange
	Steps       IntRange
}

// Standard is the resting-adult configuration used by the dashboard.
var Standard = Preset{
	Name:        "standard",
	HeartRate:   IntRange{60, 100},
	HRV:         IntRange{50, 150},
	ECG:         FloatRange{0.8, 1.2, 2},
	Temperature: FloatRange{36.1, 37.5, 1},
	SystolicBP:  IntRange{110, 130},
	DiastolicBP: IntRange{70, 85},
	SpO2:        IntRange{95, 100},
	Steps:       IntRange{3000, 8000},
}

// Wide is the historical wider-variance configuration. It is kept separate from
// Standard so that consumers can tell which ranges produced a stream.
var Wide = Preset{
	Name:        "wide",
	HeartRate:   IntRange{50, 120},
	HRV:         IntRange{20, 200},
	ECG:         FloatRange{0.5, 1.5, 2},
	Temperature: FloatRange{35.5, 38.5, 1},
	SystolicBP:  IntRange{90, 150},
	DiastolicBP: IntRange{60, 95},
	SpO2:        IntRange{90, 100},
	Steps:       IntRange{0, 12000},
}

var presets = map[string]Preset{
	Standard.Name: Standard,
	Wide.Name:     Wide,
}

// LookupPreset resolves a preset by name, case-insensitively.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", domain.ErrUnknownPreset, name)
	}
	return p, nil
}

// PresetNames lists the registered preset names.
func PresetNames() []string {
	return []string{Standard.Name, Wide.Name}
}

// Midpoint is the deterministic fallback reading: every field at the middle of its range.
func (p Preset) Midpoint() domain.VitalReading {
	return domain.VitalReading{
		HeartRate:   p.HeartRate.mid(),
		HRV:         p.HRV.mid(),
		ECG:         p.ECG.mid(),
		Temperature: p.Temperature.mid(),
		SystolicBP:  p.SystolicBP.mid(),
		DiastolicBP: p.DiastolicBP.mid(),
		SpO2:        p.SpO2.mid(),
		Steps:       p.Steps.mid(),
	}
}

// Contains reports whether every field of r lies within the preset's closed ranges.
func (p Preset) Contains(r domain.VitalReading) bool {
	return p.HeartRate.contains(r.HeartRate) &&
		p.HRV.contains(r.HRV) &&
		p.ECG.contains(r.ECG) &&
		p.Temperature.contains(r.Temperature) &&
		p.SystolicBP.contains(r.SystolicBP) &&
		p.DiastolicBP.contains(r.DiastolicBP) &&
		p.SpO2.contains(r.SpO2) &&
		p.Steps.contains(r.Steps)
}
