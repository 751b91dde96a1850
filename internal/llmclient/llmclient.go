// Package llmclient implements capability.LanguageModel against the
// Anthropic Messages API. Grounded on beads' haikuClient
// (internal/compact/haiku.go): same retry-with-backoff shape, same
// single-text-block response contract, stripped of the OTel/audit wiring
// this module has no use for.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cludeai/cortex/internal/capability"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxTokens      = 512
)

// Client wraps the Anthropic Messages API for the two operations the dream
// cycle and ingest pipeline need: scoring a memory's importance and
// synthesizing text during consolidation/reflection/emergence.
type Client struct {
	api            anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// New constructs a Client. apiKey must be non-empty; model is an Anthropic
// model identifier (e.g. "claude-haiku-4-5").
func New(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("llmclient: api key required")
	}
	if model == "" {
		return nil, errors.New("llmclient: model required")
	}
	return &Client{
		api:            anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}, nil
}

// ScoreImportance asks the model to rate a memory's importance on a 0-1
// scale and parses the leading number out of its reply. hints carries the
// same deterministic signals (whale/exit/ath/first_interaction mentions)
// the rule-based fallback uses, so the model's judgment can be informed by
// them rather than ignoring them.
func (c *Client) ScoreImportance(ctx context.Context, summary string, hints []string) (float64, error) {
	prompt := "Rate the long-term importance of this memory on a scale from 0.00 to 1.00. " +
		"Reply with only the number.\n\nMemory: " + summary
	if len(hints) > 0 {
		prompt += "\n\nSignals already detected: " + strings.Join(hints, ", ")
	}
	reply, err := c.call(ctx, prompt, 16)
	if err != nil {
		return 0, err
	}
	return parseScore(reply)
}

// Synthesize sends prompt verbatim and returns the model's full text reply;
// used by the dream cycle's consolidation/reflection/emergence phases to
// build compacted summaries, reflections, and new concept records.
func (c *Client) Synthesize(ctx context.Context, prompt string) (string, error) {
	return c.call(ctx, prompt, defaultMaxTokens)
}

func (c *Client) call(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.api.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("llmclient: no content blocks in response")
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", fmt.Errorf("llmclient: unexpected block type %q", block.Type)
			}
			return block.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("llmclient: non-retryable: %w", err)
		}
	}
	return "", fmt.Errorf("llmclient: failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func parseScore(reply string) (float64, error) {
	trimmed := strings.TrimSpace(reply)
	end := 0
	for end < len(trimmed) && (trimmed[end] == '.' || (trimmed[end] >= '0' && trimmed[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("llmclient: could not parse a score from %q", reply)
	}
	v, err := strconv.ParseFloat(trimmed[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("llmclient: parse score %q: %w", trimmed[:end], err)
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, nil
}

var _ capability.LanguageModel = (*Client)(nil)
