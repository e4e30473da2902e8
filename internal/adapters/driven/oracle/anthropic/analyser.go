// Package anthropic implements the oracle port using the Anthropic API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

// Ensure Analyser implements the oracle port.
var _ driven.Oracle = (*Analyser)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-sonnet-4-5"
	DefaultTimeout = 30 * time.Second

	// anthropicVersion is the required API version header.
	anthropicVersion = "2023-06-01"
)

// Config holds configuration for the Anthropic analyser.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string

	// Model is the model to use (default: claude-sonnet-4-5).
	Model string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Analyser produces repository and change analyses using the Anthropic API.
type Analyser struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// messagesRequest is the Anthropic /v1/messages request format.
type messagesRequest struct {
	Model       string            `json:"model"`
	Messages    []messagesMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

// messagesMessage is the Anthropic message format.
type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the Anthropic /v1/messages response format.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnalyser creates a new Anthropic analyser.
func NewAnalyser(cfg Config) (*Analyser, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Analyser{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// ModelName returns the name of the model being used.
func (a *Analyser) ModelName() string {
	return a.model
}

// AnalyseRepository produces a full repository analysis from gathered signals.
func (a *Analyser) AnalyseRepository(ctx context.Context, repoKey string, signals *domain.RepoSignals) (*domain.RepoAnalysis, error) {
	prompt := repositoryPrompt(repoKey, signals)

	reply, err := a.complete(ctx, repositorySystem, prompt, 8192)
	if err != nil {
		return nil, fmt.Errorf("analyse repository: %w", err)
	}

	var analysis domain.RepoAnalysis
	if err := decodeRecord(reply, &analysis); err != nil {
		return nil, fmt.Errorf("analyse repository: %w", err)
	}
	analysis.Normalise()
	return &analysis, nil
}

// AnalysePR classifies one merged pull request.
func (a *Analyser) AnalysePR(ctx context.Context, repoKey string, pr *domain.PullRequest) (*domain.ChangeAnalysis, error) {
	prompt := pullRequestPrompt(repoKey, pr)

	reply, err := a.complete(ctx, changeSystem, prompt, 2048)
	if err != nil {
		return nil, fmt.Errorf("analyse pull request: %w", err)
	}

	var analysis domain.ChangeAnalysis
	if err := decodeRecord(reply, &analysis); err != nil {
		return nil, fmt.Errorf("analyse pull request: %w", err)
	}
	analysis.Normalise()
	return &analysis, nil
}

// AnalyseCommits judges the significance of a batch of direct-branch commits.
func (a *Analyser) AnalyseCommits(ctx context.Context, repoKey string, commits []domain.Commit, files []domain.PRFile) (*domain.CommitSignificance, error) {
	prompt := commitsPrompt(repoKey, commits, files)

	reply, err := a.complete(ctx, changeSystem, prompt, 1024)
	if err != nil {
		return nil, fmt.Errorf("analyse commits: %w", err)
	}

	var significance domain.CommitSignificance
	if err := decodeRecord(reply, &significance); err != nil {
		return nil, fmt.Errorf("analyse commits: %w", err)
	}
	significance.Normalise()
	return &significance, nil
}

// decodeRecord extracts the first JSON object from a model reply, repairs
// common defects and decodes it into the target record.
func decodeRecord(reply string, target any) error {
	extracted, ok := extractJSON(reply)
	if !ok {
		return fmt.Errorf("%w: reply carries no JSON object", domain.ErrOracleUnavailable)
	}

	repaired := repairJSON(extracted)
	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("%w: decode reply: %v", domain.ErrOracleUnavailable, err)
	}
	return nil
}

// complete sends one prompt to the messages endpoint and returns the text
// reply.
func (a *Analyser) complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	reqBody := messagesRequest{
		Model: a.model,
		Messages: []messagesMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxTokens,
		System:    system,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.baseURL+"/v1/messages",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send request: %v", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if msgResp.Error != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrOracleUnavailable, msgResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", domain.ErrOracleUnavailable, resp.StatusCode)
	}
	if len(msgResp.Content) == 0 {
		return "", fmt.Errorf("%w: no response content returned", domain.ErrOracleUnavailable)
	}

	var reply string
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			reply += block.Text
		}
	}
	return reply, nil
}

// Ping validates the service is reachable by checking the /v1/models
// endpoint. This validates the API key without running inference.
func (a *Analyser) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("anthropic: failed to create ping request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anthropic: API returned status %d", resp.StatusCode)
	}
	return nil
}
