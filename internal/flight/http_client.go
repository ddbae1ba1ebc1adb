package flight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airshape/optimizer-core/internal/design"
)

// HTTPSimulator is a client adapter for a flight-simulation daemon speaking
// JSON over HTTP. One POST per flight:
//
//	POST {base}/v1/flights  {"airframe": {...}}  ->  {"metrics": {...}}
//
// A 422 response or an {"error": ...} body is a simulation failure; transport
// errors, timeouts and cancellations are failures too, so a hung or crashed
// simulator never aborts the surrounding search.
type HTTPSimulator struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPSimulator creates an adapter for the daemon at baseURL with the
// given per-call timeout.
func NewHTTPSimulator(baseURL string, timeout time.Duration) *HTTPSimulator {
	return &HTTPSimulator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Simulate posts the structural spec and decodes the resulting metrics.
func (s *HTTPSimulator) Simulate(ctx context.Context, spec *design.StructuralSpec) (*Metrics, error) {
	body, err := json.Marshal(map[string]any{"airframe": spec})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal airframe spec: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.baseURL+"/v1/flights", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build simulator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return nil, &FailureError{Reason: "simulator call timed out or was cancelled"}
		}
		return nil, &FailureError{Reason: "simulator unreachable: " + err.Error()}
	}
	defer resp.Body.Close()

	var payload struct {
		Metrics *Metrics `json:"metrics"`
		Error   string   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &FailureError{Reason: "undecodable simulator response: " + err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity || payload.Error != "":
		reason := payload.Error
		if reason == "" {
			reason = "simulator rejected the design"
		}
		return nil, &FailureError{Reason: reason}
	case resp.StatusCode != http.StatusOK:
		return nil, &FailureError{Reason: fmt.Sprintf("simulator returned status %d", resp.StatusCode)}
	case payload.Metrics == nil:
		return nil, &FailureError{Reason: "simulator response has no metrics"}
	}

	return payload.Metrics, nil
}
