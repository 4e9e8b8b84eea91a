package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Env                  string
	GatewayAPIBaseURL    string
	OperatorKey          string
	AnalysisWSURL        string
	RTCSignalURL         string
	DatabaseURL          string
	RequestTimeoutSec    int
	HeartbeatIntervalSec int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if u, err := url.ParseRequestURI(c.GatewayAPIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GATEWAY_API_BASE_URL must be an absolute URL, got %q", c.GatewayAPIBaseURL)
	}
	if c.RequestTimeoutSec <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SEC must be positive, got %d", c.RequestTimeoutSec)
	}
	if c.HeartbeatIntervalSec <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL_SEC must be positive, got %d", c.HeartbeatIntervalSec)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "GATEWAY_API_BASE_URL", value: c.GatewayAPIBaseURL},
		{name: "OPERATOR_KEY", value: c.OperatorKey},
		{name: "ANALYSIS_WS_URL", value: c.AnalysisWSURL},
		{name: "RTC_SIGNAL_URL", value: c.RTCSignalURL},
		{name: "DATABASE_URL", value: c.DatabaseURL},
	}
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSec) * time.Second
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
