package repository

import (
	"context"
	"time"
)

type UpsertAnalysisInput struct {
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
	UpdatedAt          time.Time
}

// AnalysisRepository stores the latest AI analysis per call.
// UpsertAnalysis must never produce a second record for the same call id.
type AnalysisRepository interface {
	UpsertAnalysis(ctx context.Context, input UpsertAnalysisInput) error
	GetAnalysisByCallID(ctx context.Context, callID string) (*CallAnalysisRecord, error)
}

// ReportRepository exposes the console's read-side of reports and operators.
type ReportRepository interface {
	ListReports(ctx context.Context, limit int) ([]Report, error)
	GetOperator(ctx context.Context, operatorID string) (*Operator, error)
}

type Repository interface {
	AnalysisRepository
	ReportRepository
}
