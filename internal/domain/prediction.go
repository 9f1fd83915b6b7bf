package domain

import "context"

// PredictionRequest is the JSON body posted to the scoring endpoint.
type PredictionRequest struct {
	Data [FeatureCount]float64 `json:"data"`
}

// NewPredictionRequest converts a reading into its positional wire form.
func NewPredictionRequest(r VitalReading) PredictionRequest {
	return PredictionRequest{Data: r.Features()}
}

// PredictionResult is the gateway response, passed through to clients verbatim.
// Only the optional risk label is interpreted; everything else is opaque.
type PredictionResult map[string]any

// Risk returns the risk classification label, if the gateway gave one.
func (p PredictionResult) Risk() (string, bool) {
	risk, ok := p["risk"].(string)
	return risk, ok && risk != ""
}

// Confidence returns the model confidence, if present and numeric.
func (p PredictionResult) Confidence() (float64, bool) {
	c, ok := p["confidence"].(float64)
	return c, ok
}

// Gateway scores a reading. Transport or remote failures wrap ErrGatewayUnavailable.
type Gateway interface {
	Predict(ctx context.Context, reading VitalReading) (PredictionResult, error)
}
