package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrGenerationFailed wraps every transport, status and decode failure of the
// generation service. Callers branch on this sentinel, never on the cause.
var ErrGenerationFailed = errors.New("question generation failed")

// Request describes the test to generate
type Request struct {
	Title         string `json:"title"`
	Theme         string `json:"theme"`
	Description   string `json:"description"`
	QuestionCount int    `json:"question_count"`
	Language      string `json:"language"`
}

// GeneratedAnswer is one answer option produced by the generation service
type GeneratedAnswer struct {
	Title     string `json:"title"`
	IsCorrect bool   `json:"is_correct"`
}

// GeneratedQuestion is one question produced by the generation service
type GeneratedQuestion struct {
	Title   string            `json:"title"`
	Answers []GeneratedAnswer `json:"answers"`
}

// GeneratedTest is the test skeleton produced by the generation service
type GeneratedTest struct {
	Questions []GeneratedQuestion `json:"questions"`
}

// Client calls the external question generation service
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a generation client. timeoutMS bounds the whole request.
func NewClient(baseURL string, timeoutMS int) *Client {
	timeout := time.Duration(timeoutMS) * time.Millisecond
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Generate requests a question tree for the given test parameters. The
// returned error is either nil or wraps ErrGenerationFailed, except for
// context deadline expiry which is surfaced as-is so callers can map it to a
// timeout response.
func (c *Client) Generate(ctx context.Context, genReq Request) (*GeneratedTest, error) {
	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().
				Err(err).
				Dur("timeout", c.timeout).
				Str("theme", genReq.Theme).
				Msg("Generation request timed out")
			return nil, context.DeadlineExceeded
		}
		log.Warn().
			Err(err).
			Str("theme", genReq.Theme).
			Msg("Generation request failed")
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a little of the body for the log, never for the caller.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("theme", genReq.Theme).
			Bytes("body", snippet).
			Msg("Generation service returned non-200")
		return nil, fmt.Errorf("%w: status %d", ErrGenerationFailed, resp.StatusCode)
	}

	var generated GeneratedTest
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGenerationFailed, err)
	}

	if len(generated.Questions) == 0 {
		return nil, fmt.Errorf("%w: empty question list", ErrGenerationFailed)
	}

	return &generated, nil
}
