package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"content_ideas_assistant/failure"
)

// OpenAI implements Gateway over any OpenAI-compatible endpoint.
type OpenAI struct {
	client   openai.Client
	http     *http.Client
	settings Settings
	logger   *zap.Logger
}

func NewOpenAI(s Settings, logger *zap.Logger) (*OpenAI, error) {
	if s.APIKey == "" {
		return nil, errors.New("api key missing; set llm.api_key or PROXYAPI_KEY")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.SpeechModel == "" {
		s.SpeechModel = "whisper-1"
	}
	if s.DownloadTimeout <= 0 {
		s.DownloadTimeout = 30 * time.Second
	}
	if s.DownloadAttempts <= 0 {
		s.DownloadAttempts = 3
	}

	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(s.MaxRetries),
		option.WithRequestTimeout(s.Timeout),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &OpenAI{
		client:   openai.NewClient(opts...),
		http:     &http.Client{Timeout: s.DownloadTimeout},
		settings: s,
		logger:   logger.Named("gateway"),
	}, nil
}

func (o *OpenAI) ChatComplete(ctx context.Context, req ChatRequest) (string, error) {
	const op = "chat"
	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, chatParams(req))
	if err != nil {
		err = classify(op, err, false, o.settings.APIKey)
		o.logger.Warn("chat completion failed",
			zap.String("purpose", string(req.Purpose)),
			zap.String("model", req.Model),
			zap.Stringer("kind", failure.KindOf(err)),
			zap.Error(err))
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", failure.Degraded(op, failure.ReasonNoChoices, "model %s returned no choices", req.Model)
	}
	choice := resp.Choices[0]
	o.logger.Debug("chat completion",
		zap.String("purpose", string(req.Purpose)),
		zap.String("model", req.Model),
		zap.String("finish_reason", choice.FinishReason),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("took", time.Since(start)))

	if choice.Message.Refusal != "" {
		return "", failure.Degraded(op, failure.ReasonRefused, "model %s refused: %s", req.Model, choice.Message.Refusal)
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", failure.Degraded(op, failure.ReasonEmpty, "model %s returned empty content (finish_reason: %s)", req.Model, choice.FinishReason)
	}
	// Cut-off JSON never parses, so treat it as a quality failure up front.
	if req.JSONMode && choice.FinishReason == "length" {
		return "", failure.Degraded(op, failure.ReasonTruncated, "model %s hit the token limit", req.Model)
	}
	return content, nil
}

func (o *OpenAI) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	const op = "image"
	resp, err := o.client.Images.Generate(ctx, imageParams(req))
	if err != nil {
		err = classify(op, err, true, o.settings.APIKey)
		o.logger.Warn("image generation failed", zap.String("model", req.Model), zap.Error(err))
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", failure.Generation(op, "model %s returned no image", req.Model)
	}
	return resp.Data[0].URL, nil
}

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	const op = "transcribe"
	if len(audio) == 0 {
		return "", failure.Generation(op, "empty audio")
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "voice.ogg", "audio/ogg"),
		Model: openai.AudioModel(o.settings.SpeechModel),
	}
	if language != "" {
		params.Language = openai.String(language)
	}
	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", classify(op, err, false, o.settings.APIKey)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", failure.Degraded(op, failure.ReasonEmpty, "transcription is empty")
	}
	return text, nil
}

func (o *OpenAI) Download(ctx context.Context, url string) ([]byte, error) {
	return download(ctx, o.http, url, o.settings.DownloadAttempts, o.logger)
}
