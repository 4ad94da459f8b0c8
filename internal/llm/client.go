// Package llm is the OpenAI-backed language-model collaborator. It selects
// tables, generates and repairs SQL, and rates its own output.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"talk2data/internal/domain"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultModel             = "gpt-4o-mini"
	DefaultSQLMaxTokens      = 800
	DefaultSelectorMaxTokens = 200
	confidenceMaxTokens      = 50
	fixTemperature           = 0.1
	retryTemperature         = 0.3
)

var (
	_ domain.TableSelectorLLM = (*Client)(nil)
	_ domain.SQLGeneratorLLM  = (*Client)(nil)
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("language model returned no choices")

// Config configures a Client.
type Config struct {
	APIKey            string
	BaseURL           string // optional, for proxies and tests
	Model             string
	Temperature       float32
	SQLMaxTokens      int
	SelectorMaxTokens int
	// Rules is the safety policy text included in repair prompts.
	Rules string
}

// Client talks to the OpenAI chat completion API.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Client. The API key is required.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.ErrValidation("OPENAI_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SQLMaxTokens <= 0 {
		cfg.SQLMaxTokens = DefaultSQLMaxTokens
	}
	if cfg.SelectorMaxTokens <= 0 {
		cfg.SelectorMaxTokens = DefaultSelectorMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:    openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger.With("component", "llm", "model", cfg.Model),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// SelectTables asks which tables answer question. The reply must be a JSON
// array of names, optionally fenced.
func (c *Client) SelectTables(ctx context.Context, question, schemaSummary string) ([]string, error) {
	prompt, err := render("table_selector.tmpl", selectorPrompt{Question: question, SchemaSummary: schemaSummary})
	if err != nil {
		return nil, err
	}
	content, err := c.complete(ctx, "", prompt, c.cfg.Temperature, c.cfg.SelectorMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("select tables: %w", err)
	}

	var tables []string
	if err := json.Unmarshal([]byte(StripCodeFences(content)), &tables); err != nil {
		c.logger.Warn("table selection reply is not a JSON array", "reply", content, "error", err)
		return nil, fmt.Errorf("parse table selection: %w", err)
	}
	return tables, nil
}

// GenerateSQL sends a system and user prompt and returns the raw reply.
func (c *Client) GenerateSQL(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	content, err := c.complete(ctx, systemPrompt, userPrompt, c.cfg.Temperature, c.cfg.SQLMaxTokens)
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	return content, nil
}

// FixSQL asks for a corrected query given validation feedback. When the
// model repeats the rejected SQL it is asked once more for a different
// approach at a higher temperature.
func (c *Client) FixSQL(ctx context.Context, req domain.FixRequest) (string, error) {
	data := fixPrompt{
		Question:  req.Question,
		FailedSQL: req.FailedSQL,
		Feedback:  req.Feedback,
		Tables:    req.Tables,
		JoinSQL:   req.JoinSQL,
		Rules:     c.cfg.Rules,
	}
	prompt, err := render("fix_sql.tmpl", data)
	if err != nil {
		return "", err
	}
	content, err := c.complete(ctx, "", prompt, fixTemperature, c.cfg.SQLMaxTokens)
	if err != nil {
		return "", fmt.Errorf("fix sql: %w", err)
	}
	fixed := StripCodeFences(content)

	if strings.TrimSpace(fixed) == strings.TrimSpace(req.FailedSQL) {
		c.logger.Warn("model returned identical SQL, retrying with a different approach")
		data.Repeated = true
		if prompt, err = render("fix_sql.tmpl", data); err != nil {
			return "", err
		}
		content, err = c.complete(ctx, "", prompt, retryTemperature, c.cfg.SQLMaxTokens)
		if err != nil {
			return "", fmt.Errorf("fix sql retry: %w", err)
		}
		fixed = StripCodeFences(content)
	}
	return fixed, nil
}

// AssessConfidence asks the model to rate sql for question. The score is
// clamped to [0, 1].
func (c *Client) AssessConfidence(ctx context.Context, question, sql string) (float64, error) {
	prompt, err := render("confidence.tmpl", confidencePrompt{Question: question, SQL: sql})
	if err != nil {
		return 0, err
	}
	content, err := c.complete(ctx, "", prompt, 0, confidenceMaxTokens)
	if err != nil {
		return 0, fmt.Errorf("assess confidence: %w", err)
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(content), 64)
	if err != nil {
		return 0, fmt.Errorf("parse confidence %q: %w", content, err)
	}
	return math.Max(0, math.Min(1, score)), nil
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	// A zero temperature is dropped from the request body, which the API
	// treats as its default of 1.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("chat completion",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
