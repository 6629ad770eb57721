package catalog

import "time"

// Confidence levels an estimator may attach to a window.
const (
	ConfidenceLow      = "low"
	ConfidenceModerate = "moderate"
	ConfidenceHigh     = "high"
)

// EstimateWindow is one bound of a delivery estimate.
type EstimateWindow struct {
	DurationHours   float64   `json:"estimatedDurationHours"`
	DeliveryDate    time.Time `json:"estimatedDeliveryDate"`
	ConfidenceLevel string    `json:"confidenceLevel"`
}

// DeliveryEstimate is produced by an external estimator and carried through
// the purchase flow as an opaque value.
type DeliveryEstimate struct {
	BestCase    EstimateWindow `json:"bestCase"`
	WorstCase   EstimateWindow `json:"worstCase"`
	Explanation string         `json:"explanation"`
}
