package repository

import "time"

// CallAnalysisRecord is the durable form of the latest analysis for one call.
// At most one record exists per call id.
type CallAnalysisRecord struct {
	ID                 string
	CallID             string
	IsPrankCall        bool
	ConfidenceScore    float64
	TrustScore         float64
	Location           string
	Reasoning          string
	KeyIndicators      []string
	Suggestion         string
	EscalationRequired bool
	ConfidenceTrend    []float64
	CurrentStatus      string
	SuggestedAction    string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ReportStatus string

const (
	ReportStatusOpen     ReportStatus = "open"
	ReportStatusResolved ReportStatus = "resolved"
)

type Report struct {
	ID          string
	CallID      string
	OperatorID  *string
	Status      ReportStatus
	Description string
	CreatedAt   time.Time
}

type Operator struct {
	ID        string
	Name      string
	Status    string
	CreatedAt time.Time
}
