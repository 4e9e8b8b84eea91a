package call

import (
	"context"
	"fmt"
	"time"

	"github.com/foxseedlab/tsuhoban/internal/analysis"
	"github.com/foxseedlab/tsuhoban/internal/repository"
)

// Reconciler lands asynchronously arriving analysis events in durable
// storage, keyed by call id so repeated events overwrite rather than
// accumulate.
type Reconciler struct {
	repo repository.AnalysisRepository
}

func NewReconciler(repo repository.AnalysisRepository) *Reconciler {
	return &Reconciler{repo: repo}
}

func (r *Reconciler) Persist(ctx context.Context, event *analysis.Event) error {
	if event == nil || event.CallID == "" || event.Analysis == nil {
		return fmt.Errorf("analysis event is incomplete")
	}
	updatedAt := time.Now().UTC()
	if event.UpdateTimestamp != "" {
		if ts, err := time.Parse(time.RFC3339, event.UpdateTimestamp); err == nil {
			updatedAt = ts
		}
	}
	return r.repo.UpsertAnalysis(ctx, repository.UpsertAnalysisInput{
		CallID:             event.CallID,
		IsPrankCall:        event.Analysis.IsPrankCall,
		ConfidenceScore:    event.Analysis.ConfidenceScore,
		TrustScore:         event.Analysis.TrustScore,
		Location:           event.Analysis.Location,
		Reasoning:          event.Analysis.Reasoning,
		KeyIndicators:      event.Analysis.KeyIndicators,
		Suggestion:         event.Analysis.Suggestion,
		EscalationRequired: event.Analysis.EscalationRequired,
		ConfidenceTrend:    event.ConfidenceTrend,
		CurrentStatus:      event.CurrentStatus,
		SuggestedAction:    event.SuggestedAction,
		UpdatedAt:          updatedAt,
	})
}
