package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"canonsync/internal/core/ports"
)

// RuntimeEndpoint describes how to reach one environment's runtime API.
type RuntimeEndpoint struct {
	BaseURL string
	APIKey  string
}

// HTTPRuntimeReader lists live workflow instances from a runtime's REST
// API. The response shape is the runtime's workflow listing:
//
//	{"data": [{"id": "...", "name": "...", "updatedAt": "...", ...}]}
//
// where each element is the full workflow definition.
type HTTPRuntimeReader struct {
	endpoints map[string]RuntimeEndpoint
	client    *http.Client
}

func NewHTTPRuntimeReader(endpoints map[string]RuntimeEndpoint) *HTTPRuntimeReader {
	return &HTTPRuntimeReader{
		endpoints: endpoints,
		// Callers pass per-attempt deadlines through ctx; this is the
		// hard ceiling.
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (r *HTTPRuntimeReader) List(ctx context.Context, tenantID uuid.UUID, environmentID string) ([]ports.RuntimeWorkflow, error) {
	endpoint, ok := r.endpoints[environmentID]
	if !ok {
		return nil, fmt.Errorf("no runtime endpoint configured for environment %s", environmentID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.BaseURL+"/api/v1/workflows", nil)
	if err != nil {
		return nil, err
	}
	if endpoint.APIKey != "" {
		req.Header.Set("X-API-KEY", endpoint.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list runtime workflows for %s: %w", environmentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list runtime workflows for %s: unexpected status %d", environmentID, resp.StatusCode)
	}

	var listing struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode runtime listing for %s: %w", environmentID, err)
	}

	workflows := make([]ports.RuntimeWorkflow, 0, len(listing.Data))
	for _, raw := range listing.Data {
		var meta struct {
			ID        string    `json:"id"`
			Name      string    `json:"name"`
			UpdatedAt time.Time `json:"updatedAt"`
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode runtime workflow for %s: %w", environmentID, err)
		}
		workflows = append(workflows, ports.RuntimeWorkflow{
			NativeID:   meta.ID,
			Name:       meta.Name,
			Definition: raw,
			UpdatedAt:  meta.UpdatedAt,
		})
	}
	return workflows, nil
}
