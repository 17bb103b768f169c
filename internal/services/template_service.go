// internal/services/template_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/lexflow/intake-backend/internal/config"
)

// TemplateService calls the external document templating capability:
// template id + flat substitution map in, rendered byte stream out.
// Render calls are the paid part of the pipeline, which is why the
// orchestrator never re-renders a document that already rendered.
type TemplateService struct {
	config *config.Config
	client *http.Client
}

type RenderRequest struct {
	TemplateID    string            `json:"template_id"`
	Substitutions map[string]string `json:"substitutions"`
}

func NewTemplateService(cfg *config.Config) *TemplateService {
	return &TemplateService{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Templating.RequestTimeout) * time.Second,
		},
	}
}

// Render invokes the templating service once. Timeouts, transport
// errors and 408/429/5xx responses come back as transient failures the
// caller may retry; other 4xx responses are terminal since retrying a
// malformed template or a rejected field cannot succeed.
func (s *TemplateService) Render(ctx context.Context, req *RenderRequest) ([]byte, error) {
	if s.config.Templating.BaseURL == "" {
		// Local development fallback: a deterministic plain-text
		// rendering so the rest of the pipeline stays exercisable.
		return s.renderLocal(req), nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TerminalDependencyError{Dependency: "templating", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.Templating.BaseURL+"/v1/render", bytes.NewReader(body))
	if err != nil {
		return nil, &TerminalDependencyError{Dependency: "templating", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.Templating.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.Templating.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &TransientDependencyError{Dependency: "templating", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := fmt.Errorf("templating returned %d: %s", resp.StatusCode, string(detail))

		if resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= 500 {
			return nil, &TransientDependencyError{Dependency: "templating", Err: cause}
		}
		return nil, &TerminalDependencyError{Dependency: "templating", Err: cause}
	}

	rendered, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientDependencyError{Dependency: "templating", Err: err}
	}
	if len(rendered) == 0 {
		return nil, &TerminalDependencyError{
			Dependency: "templating",
			Err:        fmt.Errorf("empty rendering for template %s", req.TemplateID),
		}
	}

	return rendered, nil
}

func (s *TemplateService) renderLocal(req *RenderRequest) []byte {
	keys := make([]string, 0, len(req.Substitutions))
	for k := range req.Substitutions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "TEMPLATE %s\n\n", req.TemplateID)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\n", k, req.Substitutions[k])
	}
	return buf.Bytes()
}
