// Package llmgateway implements the LLM Gateway (C3): one unified streaming
// call pattern used by every agent role, issued against the external LLM
// microservice named in spec.md §6.
//
// Grounded on BaseProvider.Retry's linear-backoff helper
// (internal/agent/providers/base.go) for transient gateway failures, and on
// the channel-based streaming contract of internal/agent/provider_types.go,
// generalized here from a provider SDK call to the ndjson HTTP protocol the
// external service speaks.
package llmgateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CarpseDeam/aura-backend/internal/auraerr"
	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// defaultTimeout matches spec.md §5's "default request timeout 300 s".
const defaultTimeout = 300 * time.Second

// scannerBufferSize raises bufio.Scanner's default token size so long
// ndjson lines (e.g. a full file's content in a chunk record) don't trip
// bufio.ErrTooLong, grounded on the streaming providers' raised-buffer
// pattern in internal/agent/providers.
const scannerBufferSize = 4 * 1024 * 1024

// Message is one entry in the conversation sent to the external service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// invokeRequest is the exact body shape named in spec.md §6.
type invokeRequest struct {
	Provider    string    `json:"provider_name"`
	Model       string    `json:"model_name"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	IsJSON      bool      `json:"is_json"`
	Tools       []any     `json:"tools,omitempty"`
}

// streamRecord is one ndjson line from the external service, covering all
// record shapes enumerated in spec.md §4.3.
type streamRecord struct {
	Type    string `json:"type"`
	Content string `json:"content"`

	FinalResponse *struct {
		Reply string `json:"reply"`
	} `json:"final_response"`
}

// StreamSink receives forwarded chunk/phase/system_log records as the
// stream is consumed. filePath is only populated on "chunk" records, and
// only when the caller supplied one to Complete — per spec.md §4.3, a
// stream-tagged chunk carries file-path metadata so the Notification Bus
// can route it as a code_stream_chunk event instead of a plain reply.
type StreamSink func(recordType, content, filePath string)

// RoleResolver resolves (provider, model, temperature) for an agent role
// from the user's current role assignments, per spec.md §4.3 step 1.
type RoleResolver func(ctx context.Context, userID string, role models.AgentRole) (provider, model string, temperature float64, err error)

// CredentialLookup resolves the credential for provider, per spec.md §4.3
// step 2.
type CredentialLookup func(ctx context.Context, userID, provider string) (string, error)

// Gateway issues the single streaming call pattern shared by every agent
// role.
type Gateway struct {
	baseURL    string
	httpClient *http.Client

	resolveRole RoleResolver
	credentials CredentialLookup

	maxRetries int
	retryDelay time.Duration
}

// Config configures a Gateway.
type Config struct {
	// BaseURL is LLM_SERVER_URL from the environment (required, spec.md §6).
	BaseURL string

	HTTPClient  *http.Client
	ResolveRole RoleResolver
	Credentials CredentialLookup

	MaxRetries int
	RetryDelay time.Duration
}

// New constructs a Gateway. Panics if BaseURL, ResolveRole, or Credentials
// is unset — these are load-bearing collaborator contracts, not optional
// dependencies.
func New(cfg Config) *Gateway {
	if cfg.BaseURL == "" {
		panic("llmgateway: BaseURL is required")
	}
	if cfg.ResolveRole == nil || cfg.Credentials == nil {
		panic("llmgateway: ResolveRole and Credentials collaborators are required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Gateway{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  cfg.HTTPClient,
		resolveRole: cfg.ResolveRole,
		credentials: cfg.Credentials,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
	}
}

// Complete issues the unified streaming call for one agent role. Forwarded
// chunk/phase/system_log records are delivered to sink as they arrive; the
// function returns the captured final_response.reply, or an
// "Error: ..."-prefixed string per spec.md §4.3 step 5 — callers detect
// this prefix rather than relying on the error return, which is reserved
// for cancellation.
//
// filePath is the "optional file_path" input named in spec.md §4.3: when
// non-empty, every forwarded "chunk" record carries it to sink so the
// caller can route the stream as a code_stream_chunk event rather than a
// plain reply fragment. Pass "" for roles that stream prose, not file
// content.
func (g *Gateway) Complete(ctx context.Context, userID string, role models.AgentRole, messages []Message, isJSON bool, filePath string, sink StreamSink) (string, error) {
	provider, model, temperature, err := g.resolveRole(ctx, userID, role)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}

	credential, err := g.credentials(ctx, userID, provider)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}

	body, err := json.Marshal(invokeRequest{
		Provider:    provider,
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		IsJSON:      isJSON,
	})
	if err != nil {
		return "", auraerr.Wrap(auraerr.KindGateway, err, "marshal invoke request")
	}

	var reply string
	var streamErr error

	retryErr := retry(ctx, g.maxRetries, g.retryDelay, isRetryableGatewayError, func() error {
		reply, streamErr = g.invoke(ctx, credential, body, filePath, sink)
		return streamErr
	})
	if retryErr != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Error: %s", retryErr.Error()), nil
	}

	return reply, nil
}

func (g *Gateway) invoke(ctx context.Context, credential string, body []byte, filePath string, sink StreamSink) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Provider-API-Key", credential)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	var reply string
	var sawFinal bool

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record streamRecord
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}

		if record.FinalResponse != nil {
			reply = record.FinalResponse.Reply
			sawFinal = true
			continue
		}

		switch record.Type {
		case "chunk":
			if sink != nil {
				sink(record.Type, record.Content, filePath)
			}
		case "phase", "system_log":
			if sink != nil {
				sink(record.Type, record.Content, "")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("malformed stream: %w", err)
	}
	if !sawFinal {
		return "", fmt.Errorf("malformed stream: no final_response record")
	}

	return reply, nil
}

func isRetryableGatewayError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request failed") || strings.Contains(msg, "timeout") || strings.Contains(msg, "connection")
}

// retry runs op with linear backoff, grounded on BaseProvider.Retry.
func retry(ctx context.Context, maxRetries int, delay time.Duration, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				return err
			}
			if attempt >= maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}
