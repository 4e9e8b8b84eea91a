package analysis

import "encoding/json"

// Verdict is the AI backend's judgment about one call.
type Verdict struct {
	IsPrankCall        bool     `json:"is_prank_call"`
	ConfidenceScore    float64  `json:"confidence_score"`
	TrustScore         float64  `json:"trust_score"`
	Location           string   `json:"location"`
	Reasoning          string   `json:"reasoning"`
	KeyIndicators      []string `json:"key_indicators"`
	Suggestion         string   `json:"suggestion"`
	EscalationRequired bool     `json:"escalation_required"`
}

// Event is one analysis update arriving asynchronously over a peer's socket.
// CurrentStatus reflects the producer's own judgment of completeness
// ("analyzing", "completed", ...), not the session's.
type Event struct {
	CallID          string    `json:"call_id"`
	Analysis        *Verdict  `json:"analysis"`
	ConfidenceTrend []float64 `json:"confidence_trend"`
	CurrentStatus   string    `json:"current_status"`
	SuggestedAction string    `json:"suggested_action"`
	UpdateTimestamp string    `json:"update_timestamp"`
}

// DecodeEvent attempts a strict decode of an inbound socket payload into an
// Event. The payload must be JSON and carry a call identifier, an analysis
// object, and a status; everything else is the opaque variant (ok=false).
func DecodeEvent(data []byte) (*Event, bool) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if e.CallID == "" || e.Analysis == nil || e.CurrentStatus == "" {
		return nil, false
	}
	return &e, true
}
