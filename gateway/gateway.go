// Package gateway is the only place that talks to the remote model provider.
// Callers describe what they need (chat, image, transcription); the gateway
// adapts parameters to the model, retries transport errors and classifies
// failures into the failure taxonomy.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Roles understood by chat completions.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Purpose tags a chat request with the stage that issued it. It drives logging
// and the scripted Mock; the OpenAI implementation never sends it.
type Purpose string

const (
	PurposeModeration  Purpose = "moderation"
	PurposeIdeas       Purpose = "ideas"
	PurposePost        Purpose = "post"
	PurposeImagePrompt Purpose = "image_prompt"
	PurposeReformulate Purpose = "reformulate"
	PurposeCheck       Purpose = "check"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// ChatRequest describes a chat completion. Temperature is nil when the caller
// wants the provider default; MaxTokens 0 means no limit.
type ChatRequest struct {
	Purpose     Purpose
	Messages    []Message
	Model       string
	Temperature *float64
	MaxTokens   int
	JSONMode    bool
}

// ImageRequest describes an image generation call.
type ImageRequest struct {
	Prompt  string
	Model   string
	Size    string
	Quality string
	Count   int
}

// Gateway is the capability the generation stages consume.
type Gateway interface {
	ChatComplete(ctx context.Context, req ChatRequest) (string, error)
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Temperature returns a pointer usable as ChatRequest.Temperature.
func Temperature(v float64) *float64 { return &v }

// Settings configures a Gateway.
type Settings struct {
	Provider         string
	APIKey           string
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	SpeechModel      string
	DownloadTimeout  time.Duration
	DownloadAttempts int
}

// New builds the gateway for the configured provider.
func New(s Settings, logger *zap.Logger) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "", "openai", "proxyapi", "deepseek":
		return NewOpenAI(s, logger)
	case "mock":
		return NewMock(), nil
	default:
		return nil, errors.New("unsupported llm provider: " + s.Provider)
	}
}
