package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/innomightlabs/krishna/pkg/logger"
)

const maxRetries = 3

// HTTPProvider talks to any OpenAI-compatible chat completion endpoint.
type HTTPProvider struct {
	apiKey      string
	apiBase     string
	model       string
	maxTokens   int
	temperature float64
	userAgent   string
	httpClient  *http.Client
}

func NewHTTPProvider(apiKey, apiBase, model string, maxTokens int, temperature float64) *HTTPProvider {
	return &HTTPProvider{
		apiKey:      apiKey,
		apiBase:     apiBase,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// SetUserAgent overrides the User-Agent header sent on every request.
func (p *HTTPProvider) SetUserAgent(ua string) {
	p.userAgent = ua
}

func (p *HTTPProvider) Invoke(ctx context.Context, prompt string) (*ModelReply, error) {
	if p.apiBase == "" {
		return nil, fmt.Errorf("API base not configured")
	}

	requestBody := map[string]interface{}{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if p.maxTokens > 0 {
		requestBody["max_tokens"] = p.maxTokens
	}
	if p.temperature > 0 {
		requestBody["temperature"] = p.temperature
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var body []byte
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.userAgent != "" {
			req.Header.Set("User-Agent", p.userAgent)
		}
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}

		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return p.parseResponse(body)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			delay := parseRetryDelay(resp.Header.Get("Retry-After"))
			logger.WarnCF("provider", "Rate limited, retrying",
				map[string]interface{}{
					"delay_s": delay.Seconds(),
					"attempt": attempt + 1,
					"max":     maxRetries,
				})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		return nil, fmt.Errorf("API error: %s", string(body))
	}

	return nil, fmt.Errorf("API error after %d retries: %s", maxRetries, string(body))
}

func (p *HTTPProvider) parseResponse(body []byte) (*ModelReply, error) {
	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content          string `json:"content"`
				ReasoningContent string `json:"reasoning_content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *Usage `json:"usage"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(apiResponse.Choices) == 0 {
		return &ModelReply{Usage: apiResponse.Usage}, nil
	}

	choice := apiResponse.Choices[0]
	content := stripThinkTags(choice.Message.Content)
	if content == "" && choice.Message.ReasoningContent != "" {
		content = stripThinkTags(choice.Message.ReasoningContent)
	}

	return &ModelReply{
		Content: content,
		Usage:   apiResponse.Usage,
	}, nil
}

// stripThinkTags removes <think>...</think> blocks from model output.
// Some reasoning models embed their chain-of-thought inline in the
// content field rather than a separate reasoning_content field.
func stripThinkTags(s string) string {
	const openTag = "<think>"
	const closeTag = "</think>"

	result := strings.Builder{}
	rest := s
	for {
		start := strings.Index(rest, openTag)
		if start == -1 {
			result.WriteString(rest)
			break
		}
		result.WriteString(rest[:start])
		end := strings.Index(rest[start:], closeTag)
		if end == -1 {
			// Unclosed tag: drop the rest to avoid leaking partial reasoning.
			break
		}
		rest = rest[start+end+len(closeTag):]
	}
	out := result.String()
	if idx := strings.Index(out, closeTag); idx != -1 {
		out = out[idx+len(closeTag):]
	}
	return strings.TrimSpace(out)
}

// parseRetryDelay extracts the retry delay from a Retry-After header.
func parseRetryDelay(retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 30 * time.Second
}
