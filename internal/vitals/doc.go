// Package vitals generates synthetic vital-sign readings.
//
// A Generator samples every field independently and uniformly from the closed ranges of a
// named Preset. When its EntropySource fails, the Generator falls back to the preset's
// deterministic mid-range reading so that every tick still produces exactly one reading.
package vitals
