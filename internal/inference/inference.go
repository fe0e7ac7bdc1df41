package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/config"
	"github.com/neurobot/backend/internal/features"
)

// Sentinel moods stored when no real label is available.
const (
	MoodNoKey = "unknown (no-openai-key)"
	MoodError = "error"
)

// MaxMoodLength is the longest label a record can hold.
const MaxMoodLength = 128

var errNoChoices = errors.New("chat response has no choices")

// Client asks a chat-completions endpoint for a short mood label.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	log       *zap.Logger
}

// New returns a client for cfg. Without an API key the client never makes
// a request.
func New(cfg config.InferenceConfig, log *zap.Logger) *Client {
	c := &Client{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		log:       log,
	}
	if cfg.APIKey == "" {
		return c
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		oc.BaseURL = base
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	c.api = openai.NewClientWithConfig(oc)
	return c
}

// InferMood never fails: without an API key it returns MoodNoKey and on any
// request or decoding failure it returns MoodError.
func (c *Client) InferMood(ctx context.Context, f features.Summary) string {
	if c.api == nil {
		return MoodNoKey
	}
	mood, err := c.complete(ctx, Prompt(f))
	if err != nil {
		c.log.Warn("mood inference failed", zap.Error(err))
		return MoodError
	}
	return mood
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return Clamp(resp.Choices[0].Message.Content), nil
}

// Prompt renders the question sent for a feature summary.
func Prompt(f features.Summary) string {
	data, _ := json.Marshal(f)
	return fmt.Sprintf("Given EEG features %s, infer a likely mood (short label).", data)
}

// Clamp trims whitespace and cuts a label to MaxMoodLength runes.
func Clamp(mood string) string {
	mood = strings.TrimSpace(mood)
	if utf8.RuneCountInString(mood) <= MaxMoodLength {
		return mood
	}
	return string([]rune(mood)[:MaxMoodLength])
}
