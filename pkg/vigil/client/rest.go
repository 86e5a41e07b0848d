package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/petrellis/vigil/pkg/vigil/presence"
)

// snapshotResponse is the wrapper the relay's REST endpoint returns.
type snapshotResponse struct {
	Success bool             `json:"success"`
	Data    *presence.Record `json:"data"`
}

// FetchSnapshot retrieves a one-shot presence record for a subject
// from the relay's REST endpoint (GET <base>/api/v1/users/<id>),
// without holding a socket open. Useful for spot checks; the streaming
// path stays authoritative for live display.
func FetchSnapshot(ctx context.Context, httpClient *http.Client, baseURL, subjectID string) (*presence.Record, error) {
	if !subjectIDPattern.MatchString(subjectID) {
		return nil, fmt.Errorf("%w: %q", ErrNoValidSubjects, subjectID)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint, err := url.JoinPath(baseURL, "api", "v1", "users", subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, baseURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request failed: %s", resp.Status)
	}

	var snapshot snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("undecodable snapshot response: %w", err)
	}
	if !snapshot.Success || snapshot.Data == nil {
		return nil, fmt.Errorf("snapshot request unsuccessful for subject %s", subjectID)
	}

	return snapshot.Data, nil
}
