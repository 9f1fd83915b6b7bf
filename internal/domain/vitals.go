package domain

// VitalReading is one synthetic vital-sign snapshot. Values are immutable once generated.
type VitalReading struct {
	HeartRate   int     `json:"heartRate"`
	HRV         int     `json:"hrv"`
	ECG         float64 `json:"ecg"`
	Temperature float64 `json:"temperature"`
	SystolicBP  int     `json:"systolicBP"`
	DiastolicBP int     `json:"diastolicBP"`
	SpO2        int     `json:"spo2"`
	Steps       int     `json:"steps"`
}

// FeatureCount is the length of the vector sent to the prediction gateway.
const FeatureCount = 8

// Features returns the reading as the gateway feature vector. The order is a wire
// contract with the scoring model and must not change.
func (r VitalReading) Features() [FeatureCount]float64 {
	return [FeatureCount]float64{
		float64(r.HeartRate),
		float64(r.HRV),
		r.ECG,
		r.Temperature,
		float64(r.SystolicBP),
		float64(r.DiastolicBP),
		float64(r.SpO2),
		float64(r.Steps),
	}
}

// Generator produces one reading per call and never fails.
type Generator interface {
	Generate() VitalReading
}
