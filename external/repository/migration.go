package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS ai_recommendations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		call_id TEXT NOT NULL UNIQUE,
		is_prank_call BOOLEAN NOT NULL DEFAULT FALSE,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		trust_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		location TEXT NOT NULL DEFAULT '',
		reasoning TEXT NOT NULL DEFAULT '',
		key_indicators JSONB NOT NULL DEFAULT '[]',
		suggestion TEXT NOT NULL DEFAULT '',
		escalation_required BOOLEAN NOT NULL DEFAULT FALSE,
		confidence_trend JSONB NOT NULL DEFAULT '[]',
		current_status TEXT NOT NULL DEFAULT '',
		suggested_action TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_recommendations_call ON ai_recommendations (call_id)`,
	`DO $$ BEGIN CREATE TYPE report_status AS ENUM ('open', 'resolved'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS operators (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'offline',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		call_id TEXT NOT NULL,
		operator_id UUID REFERENCES operators(id),
		status report_status NOT NULL DEFAULT 'open',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_call ON reports (call_id)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
