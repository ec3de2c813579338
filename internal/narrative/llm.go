package narrative

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

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
)

const systemPrompt = `You are an assistant for a bank's KYC compliance team.
You receive the final risk assessment for one customer. The score, band and drivers are final and must not be changed or re-evaluated.
Write a short plain-language summary of why the customer received this rating and suggest concrete next steps for the analyst.
Return only a JSON object of the form {"summary": "...", "suggested_actions": ["..."]}.`

const narrativeSchemaURL = "https://kyc-risk.schemas.local/narrative.schema.json"

const narrativeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["summary", "suggested_actions"],
  "properties": {
    "summary": {"type": "string", "minLength": 1, "maxLength": 4000},
    "suggested_actions": {
      "type": "array",
      "maxItems": 10,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

var (
	ErrNoJSON          = errors.New("model response contains no JSON object")
	ErrInvalidResponse = errors.New("model response failed schema validation")
)

// explainPayload is the read-only view of an entry sent to the model
type explainPayload struct {
	CustomerID string              `json:"customer_id"`
	Score      int                 `json:"score"`
	Band       domain.RiskLevel    `json:"band"`
	Breakdown  domain.Breakdown    `json:"breakdown"`
	Drivers    []string            `json:"drivers"`
	Factors    []domain.RiskFactor `json:"factors,omitempty"`
	Confidence float64             `json:"confidence"`
	Sanctions  *sanctionsView      `json:"sanctions_match,omitempty"`
}

type sanctionsView struct {
	EntryID    string   `json:"entry_id"`
	Name       string   `json:"name"`
	ListID     string   `json:"list_id"`
	Confidence float64  `json:"confidence"`
	IsMatch    bool     `json:"is_match"`
	Evidence   []string `json:"evidence,omitempty"`
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type modelNarrative struct {
	Summary          string   `json:"summary"`
	SuggestedActions []string `json:"suggested_actions"`
}

// LLMExplainer asks an Ollama-compatible model for a narrative. Every failure,
// including an open circuit, falls back to the template explainer.
type LLMExplainer struct {
	client   *http.Client
	endpoint string
	model    string
	breaker  *gobreaker.CircuitBreaker
	schema   *jsonschema.Schema
	fallback Explainer
	log      *logger.Logger
}

// NewLLMExplainer builds the explainer from config.
func NewLLMExplainer(cfg *config.NarrativeConfig, log *logger.Logger) (*LLMExplainer, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(narrativeSchemaURL, strings.NewReader(narrativeSchema)); err != nil {
		return nil, fmt.Errorf("narrative schema load failed: %w", err)
	}
	schema, err := c.Compile(narrativeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("narrative schema compile failed: %w", err)
	}

	log = log.Named("narrative")
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "narrative-llm",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &LLMExplainer{
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: strings.TrimRight(cfg.Endpoint, "/") + "/api/generate",
		model:    cfg.Model,
		breaker:  breaker,
		schema:   schema,
		fallback: NewTemplateExplainer(),
		log:      log,
	}, nil
}

// Explain returns the model narrative, or the template narrative on any failure.
func (e *LLMExplainer) Explain(ctx context.Context, entry *domain.BatchEntry) (*domain.Narrative, error) {
	if entry.Assessment == nil {
		return nil, ErrNoAssessment
	}

	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.generate(ctx, entry)
	})
	if err != nil {
		e.log.NarrativeFallback(entry.CustomerID, err)
		return e.fallback.Explain(ctx, entry)
	}
	return out.(*domain.Narrative), nil
}

func (e *LLMExplainer) generate(ctx context.Context, entry *domain.BatchEntry) (*domain.Narrative, error) {
	payload, err := json.Marshal(newExplainPayload(entry))
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(generateRequest{
		Model:  e.model,
		Prompt: "SYSTEM:\n" + systemPrompt + "\n\nUSER JSON:\n" + string(payload),
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model returned status %d", resp.StatusCode)
	}
	e.log.Debug("model responded",
		zap.String("customer_id", entry.CustomerID),
		zap.Duration("latency", time.Since(start)),
	)

	var gen generateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}
	return e.parse(gen.Response)
}

// parse extracts the first JSON object from the model text and validates it.
func (e *LLMExplainer) parse(text string) (*domain.Narrative, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, ErrNoJSON
	}
	object := text[start : end+1]

	var doc interface{}
	if err := json.Unmarshal([]byte(object), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var n modelNarrative
	if err := json.Unmarshal([]byte(object), &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if n.SuggestedActions == nil {
		n.SuggestedActions = []string{}
	}
	return &domain.Narrative{
		Summary:          strings.TrimSpace(n.Summary),
		SuggestedActions: n.SuggestedActions,
		Source:           SourceLLM,
	}, nil
}

func newExplainPayload(entry *domain.BatchEntry) explainPayload {
	a := entry.Assessment
	p := explainPayload{
		CustomerID: entry.CustomerID,
		Score:      a.Score,
		Band:       a.Band,
		Breakdown:  make(domain.Breakdown, len(a.Breakdown)),
		Drivers:    append([]string(nil), a.Drivers...),
		Factors:    append([]domain.RiskFactor(nil), a.Factors...),
		Confidence: a.Confidence,
	}
	for k, v := range a.Breakdown {
		p.Breakdown[k] = v
	}
	if best := entry.BestCandidate(); best != nil {
		p.Sanctions = &sanctionsView{
			EntryID:    best.Entry.ID,
			Name:       best.Entry.Name,
			ListID:     best.Entry.ListID,
			Confidence: best.Confidence,
			IsMatch:    best.IsMatch,
			Evidence:   append([]string(nil), best.Evidence...),
		}
	}
	return p
}
