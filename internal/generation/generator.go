package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// Task is one image to produce. A batch is Units x Variations tasks.
type Task struct {
	OperationID uuid.UUID           `json:"operation_id"`
	AccountID   string              `json:"account_id"`
	Kind        enums.OperationKind `json:"kind"`
	Index       int                 `json:"index"`
	Scene       string              `json:"scene,omitempty"`
	Variation   int                 `json:"variation"`
	Parameters  pricing.Parameters  `json:"parameters"`
}

// Generator produces one artifact and returns its storage path.
type Generator interface {
	Generate(ctx context.Context, task Task) (string, error)
}

// HTTPGenerator calls the generation backend over JSON/HTTP.
type HTTPGenerator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type generateResponse struct {
	ArtifactPath string `json:"artifact_path"`
	Error        string `json:"error"`
}

func NewHTTPGenerator(endpoint, apiKey string, httpClient *http.Client) (*HTTPGenerator, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("generation endpoint required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPGenerator{endpoint: endpoint, apiKey: apiKey, httpClient: httpClient}, nil
}

func (g *HTTPGenerator) Generate(ctx context.Context, task Task) (string, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("generation task %d failed: %s: %s", task.Index, resp.Status, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("generation task %d: decode response: %w", task.Index, decodeErr)
	}
	if strings.TrimSpace(out.ArtifactPath) == "" {
		return "", fmt.Errorf("generation task %d returned no artifact", task.Index)
	}
	return out.ArtifactPath, nil
}
