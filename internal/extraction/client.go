package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/intake"
	"github.com/poundofcure/go-intake/pkg/circuitbreaker"
)

// ClientConfig holds extraction service connection settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
}

// Client calls the extraction service over HTTP. Failures are wrapped in
// ErrExtraction so the orchestrator degrades the conversation instead of
// the turn.
type Client struct {
	config  ClientConfig
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates an extraction service client.
func NewClient(cfg ClientConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("extraction-service"), logger)
	if err != nil {
		return nil, err
	}
	return &Client{config: cfg, http: httpClient, breaker: breaker, logger: logger}, nil
}

type identityRequest struct {
	Utterance string    `json:"utterance"`
	History   []Message `json:"history,omitempty"`
}

type identityResponse struct {
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

// ExtractIdentity asks the service for a last name and date of birth.
func (c *Client) ExtractIdentity(ctx context.Context, utterance string, history []Message) (Identity, error) {
	var resp identityResponse
	err := c.post(ctx, "/v1/extract/identity", identityRequest{Utterance: utterance, History: history}, &resp)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: identity: %v", ErrExtraction, err)
	}
	return Identity{LastName: resp.LastName, DateOfBirth: resp.DateOfBirth}, nil
}

type fieldsRequest struct {
	Section     catalog.Section `json:"section"`
	Schema      []catalog.Field `json:"schema"`
	Existing    intake.Record   `json:"existing,omitempty"`
	History     []Message       `json:"history,omitempty"`
	Utterance   string          `json:"utterance"`
	TargetPaths []string        `json:"target_paths,omitempty"`
}

type fieldsResponse struct {
	Fields intake.Record `json:"fields"`
}

// ExtractFields asks the service for section data found in the message.
func (c *Client) ExtractFields(ctx context.Context, req Request) (Result, error) {
	var resp fieldsResponse
	err := c.post(ctx, "/v1/extract/fields", fieldsRequest{
		Section:     req.Section,
		Schema:      req.Schema,
		Existing:    req.Existing,
		History:     req.History,
		Utterance:   req.Utterance,
		TargetPaths: req.TargetPaths,
	}, &resp)
	if err != nil {
		return Result{}, fmt.Errorf("%w: fields: %v", ErrExtraction, err)
	}
	return Result{Fields: resp.Fields}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	body, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("extraction service returned %d", resp.StatusCode)
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	return json.Unmarshal(body.([]byte), out)
}
