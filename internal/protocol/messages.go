package protocol

import "time"

// Safety is the coarse three-level category derived from a predicted label.
type Safety string

const (
	SafetySafe    Safety = "safe"
	SafetyCaution Safety = "caution"
	SafetyDanger  Safety = "danger"
)

// Code returns the single-byte status code published to badge devices.
func (s Safety) Code() byte {
	switch s {
	case SafetyDanger:
		return 'D'
	case SafetyCaution:
		return 'C'
	default:
		return 'S'
	}
}

// PredictionEvent is broadcast on the bus after each classification.
type PredictionEvent struct {
	SessionID  string    `json:"session_id"`
	Pipeline   string    `json:"pipeline"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Safety     Safety    `json:"safety"`
	Code       string    `json:"code"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectPrediction = "classify.result"
)
