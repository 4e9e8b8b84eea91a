package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/tsuhoban/internal/gateway"
	"github.com/google/uuid"
)

const (
	operatorKeyHeader = "x-operator-key"
	requestIDHeader   = "x-request-id"
)

type HTTPClient struct {
	baseURL     string
	operatorKey string
	client      *http.Client
}

func NewHTTPClient(baseURL, operatorKey string, timeout time.Duration) gateway.Client {
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		operatorKey: operatorKey,
		client:      &http.Client{Timeout: timeout},
	}
}

type credentialsResponse struct {
	AppID       string `json:"appId"`
	Channel     string `json:"channel"`
	ChannelName string `json:"channelName"`
	Token       string `json:"token"`
}

func (r credentialsResponse) toCredentials() (gateway.Credentials, error) {
	channel := r.Channel
	if channel == "" {
		channel = r.ChannelName
	}
	if r.AppID == "" || channel == "" || r.Token == "" {
		return gateway.Credentials{}, fmt.Errorf("invalid credentials response: missing appId, channel, or token")
	}
	return gateway.Credentials{AppID: r.AppID, Channel: channel, Token: r.Token}, nil
}

func (c *HTTPClient) StartCall(ctx context.Context) (gateway.Credentials, error) {
	resp, err := c.post(ctx, "/start-call", nil, false)
	if err != nil {
		return gateway.Credentials{}, err
	}
	var raw credentialsResponse
	if err := json.Unmarshal(resp, &raw); err != nil {
		return gateway.Credentials{}, fmt.Errorf("decode start-call response: %w", err)
	}
	return raw.toCredentials()
}

func (c *HTTPClient) JoinCall(ctx context.Context, channelName string) (gateway.Credentials, error) {
	resp, err := c.post(ctx, "/join-call", map[string]string{"channelName": channelName}, true)
	if err != nil {
		return gateway.Credentials{}, err
	}
	var raw credentialsResponse
	if err := json.Unmarshal(resp, &raw); err != nil {
		return gateway.Credentials{}, fmt.Errorf("decode join-call response: %w", err)
	}
	return raw.toCredentials()
}

func (c *HTTPClient) EndCall(ctx context.Context, channelName string) error {
	_, err := c.post(ctx, "/end-call", map[string]string{"channelName": channelName}, true)
	return err
}

type channelJSON struct {
	ChannelName string     `json:"channelName"`
	Status      string     `json:"status"`
	CreatedAt   *time.Time `json:"created_at"`
	AnsweredAt  *time.Time `json:"answered_at"`
}

type callListResponse struct {
	Channels []channelJSON `json:"channels"`
}

func (c *HTTPClient) ListCalls(ctx context.Context) ([]gateway.Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/call-list", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(operatorKeyHeader, c.operatorKey)
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return nil, fmt.Errorf("call-list returned status %d", resp.StatusCode)
	}

	var raw callListResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode call-list response: %w", err)
	}
	channels := make([]gateway.Channel, 0, len(raw.Channels))
	for _, ch := range raw.Channels {
		channels = append(channels, gateway.Channel{
			ChannelName: ch.ChannelName,
			Status:      gateway.ChannelStatus(ch.Status),
			CreatedAt:   ch.CreatedAt,
			AnsweredAt:  ch.AnsweredAt,
		})
	}
	return channels, nil
}

type heartbeatResponse struct {
	Alive  bool   `json:"alive"`
	Status string `json:"status"`
}

// Heartbeat reuses the join-call endpoint as a liveness probe for the
// channel. A non-2xx status means "not alive", not a transport error.
func (c *HTTPClient) Heartbeat(ctx context.Context, channelName string) (bool, error) {
	body, err := json.Marshal(map[string]string{"channelName": channelName})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/join-call", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(operatorKeyHeader, c.operatorKey)
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return false, nil
	}

	var raw heartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return false, nil
	}
	return raw.Alive || raw.Status == "active", nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body map[string]string, withOperatorKey bool) ([]byte, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if withOperatorKey {
		req.Header.Set(operatorKeyHeader, c.operatorKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return nil, fmt.Errorf("%s returned status %d", strings.TrimPrefix(path, "/"), resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
