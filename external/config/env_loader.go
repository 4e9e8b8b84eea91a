package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/tsuhoban/internal/config"
)

type envConfig struct {
	Env                  string `env:"ENV" envDefault:"production"`
	GatewayAPIBaseURL    string `env:"GATEWAY_API_BASE_URL,required"`
	OperatorKey          string `env:"OPERATOR_KEY,required"`
	AnalysisWSURL        string `env:"ANALYSIS_WS_URL,required"`
	RTCSignalURL         string `env:"RTC_SIGNAL_URL,required"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	RequestTimeoutSec    int    `env:"REQUEST_TIMEOUT_SEC" envDefault:"10"`
	HeartbeatIntervalSec int    `env:"HEARTBEAT_INTERVAL_SEC" envDefault:"30"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		GatewayAPIBaseURL:    raw.GatewayAPIBaseURL,
		OperatorKey:          raw.OperatorKey,
		AnalysisWSURL:        raw.AnalysisWSURL,
		RTCSignalURL:         raw.RTCSignalURL,
		DatabaseURL:          raw.DatabaseURL,
		RequestTimeoutSec:    raw.RequestTimeoutSec,
		HeartbeatIntervalSec: raw.HeartbeatIntervalSec,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
