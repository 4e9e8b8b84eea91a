package repository

import (
	"context"
	"encoding/json"

	"github.com/foxseedlab/tsuhoban/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) UpsertAnalysis(ctx context.Context, input repository.UpsertAnalysisInput) error {
	indicators, err := json.Marshal(input.KeyIndicators)
	if err != nil {
		return err
	}
	trend, err := json.Marshal(input.ConfidenceTrend)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO ai_recommendations
		   (call_id, is_prank_call, confidence_score, trust_score, location, reasoning,
		    key_indicators, suggestion, escalation_required, confidence_trend,
		    current_status, suggested_action, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (call_id) DO UPDATE SET
		   is_prank_call = EXCLUDED.is_prank_call,
		   confidence_score = EXCLUDED.confidence_score,
		   trust_score = EXCLUDED.trust_score,
		   location = EXCLUDED.location,
		   reasoning = EXCLUDED.reasoning,
		   key_indicators = EXCLUDED.key_indicators,
		   suggestion = EXCLUDED.suggestion,
		   escalation_required = EXCLUDED.escalation_required,
		   confidence_trend = EXCLUDED.confidence_trend,
		   current_status = EXCLUDED.current_status,
		   suggested_action = EXCLUDED.suggested_action,
		   updated_at = EXCLUDED.updated_at`,
		input.CallID, input.IsPrankCall, input.ConfidenceScore, input.TrustScore,
		input.Location, input.Reasoning, indicators, input.Suggestion,
		input.EscalationRequired, trend, input.CurrentStatus, input.SuggestedAction,
		input.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetAnalysisByCallID(ctx context.Context, callID string) (*repository.CallAnalysisRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, call_id, is_prank_call, confidence_score, trust_score, location,
		        reasoning, key_indicators, suggestion, escalation_required,
		        confidence_trend, current_status, suggested_action, created_at, updated_at
		 FROM ai_recommendations WHERE call_id = $1`,
		callID)
	var rec repository.CallAnalysisRecord
	var indicators, trend []byte
	err := row.Scan(&rec.ID, &rec.CallID, &rec.IsPrankCall, &rec.ConfidenceScore,
		&rec.TrustScore, &rec.Location, &rec.Reasoning, &indicators, &rec.Suggestion,
		&rec.EscalationRequired, &trend, &rec.CurrentStatus, &rec.SuggestedAction,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(indicators) > 0 {
		if err := json.Unmarshal(indicators, &rec.KeyIndicators); err != nil {
			return nil, err
		}
	}
	if len(trend) > 0 {
		if err := json.Unmarshal(trend, &rec.ConfidenceTrend); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (r *PostgresRepository) ListReports(ctx context.Context, limit int) ([]repository.Report, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, call_id, operator_id, status, description, created_at
		 FROM reports ORDER BY created_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Report
	for rows.Next() {
		var rep repository.Report
		if err := rows.Scan(&rep.ID, &rep.CallID, &rep.OperatorID, &rep.Status, &rep.Description, &rep.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, rep)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) GetOperator(ctx context.Context, operatorID string) (*repository.Operator, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, status, created_at FROM operators WHERE id = $1`,
		operatorID)
	var op repository.Operator
	err := row.Scan(&op.ID, &op.Name, &op.Status, &op.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}
