package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"content_ideas_assistant/failure"
	"content_ideas_assistant/gateway"
)

// ImageStore persists generated images; the returned string locates the copy.
type ImageStore interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
}

// Agent runs the idea stage and the post pipeline against a gateway.
type Agent struct {
	gw       gateway.Gateway
	settings Settings
	store    ImageStore
	logger   *zap.Logger
	saves    sync.WaitGroup
}

// Option customises an Agent.
type Option func(*Agent)

// WithImageStore keeps a copy of every generated image.
func WithImageStore(s ImageStore) Option {
	return func(a *Agent) { a.store = s }
}

// WithLogger sets the agent logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAgent(gw gateway.Gateway, s Settings, opts ...Option) (*Agent, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	a := &Agent{gw: gw, settings: s.withDefaults(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("generator")
	return a, nil
}

// GenerateIdeas returns exactly IdeaCount ideas for the brief.
func (a *Agent) GenerateIdeas(ctx context.Context, b Brief) ([]Idea, error) {
	a.logger.Info("generating ideas",
		zap.String("niche", b.Niche), zap.String("goal", b.Goal), zap.String("format", b.Format))

	p := BuildIdeasPrompt(b)
	raw, err := a.gw.ChatComplete(ctx, gateway.ChatRequest{
		Purpose:     gateway.PurposeIdeas,
		Messages:    p.Messages(),
		Model:       a.settings.TextModel,
		Temperature: gateway.Temperature(a.settings.TemperatureIdeas),
		MaxTokens:   a.settings.MaxTokensIdeas,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate ideas: %w", err)
	}
	ideas, err := ParseIdeas(raw)
	if err != nil {
		a.logger.Warn("idea batch rejected", zap.Error(err))
		return nil, err
	}
	a.logger.Info("ideas generated", zap.Int("count", len(ideas)))
	return ideas, nil
}

// GeneratePostText runs the post stage on the premium model and retries once
// on the fallback model when the first answer is empty, refused or truncated.
func (a *Agent) GeneratePostText(ctx context.Context, b Brief, idea Idea) (Post, error) {
	p := BuildPostPrompt(b, idea)
	req := gateway.ChatRequest{
		Purpose:     gateway.PurposePost,
		Messages:    p.Messages(),
		Model:       a.settings.PostModel,
		Temperature: gateway.Temperature(a.settings.TemperaturePost),
		MaxTokens:   a.settings.MaxTokensPost,
		JSONMode:    true,
	}
	a.logger.Info("generating post text", zap.String("idea", idea.Title), zap.String("model", req.Model))

	raw, err := a.gw.ChatComplete(ctx, req)
	if err != nil && failure.IsQualityDegraded(err) && a.canFallback() {
		a.logger.Warn("post model degraded, switching to fallback",
			zap.String("model", req.Model),
			zap.String("fallback", a.settings.FallbackModel),
			zap.Error(err))
		req.Model = a.settings.FallbackModel
		raw, err = a.gw.ChatComplete(ctx, req)
	}
	if err != nil {
		return Post{}, fmt.Errorf("generate post: %w", err)
	}
	post, err := ParsePost(raw)
	if err != nil {
		return Post{}, err
	}
	a.logger.Info("post text generated", zap.Int("runes", len([]rune(post.Content))))
	return post, nil
}

func (a *Agent) canFallback() bool {
	return a.settings.FallbackModel != "" && a.settings.FallbackModel != a.settings.PostModel
}

// GenerateImagePrompt turns the finished post into an English image prompt.
func (a *Agent) GenerateImagePrompt(ctx context.Context, b Brief, post Post) (string, error) {
	p := BuildImagePromptPrompt(b, post, a.settings.ContentLimit)
	raw, err := a.gw.ChatComplete(ctx, gateway.ChatRequest{
		Purpose:     gateway.PurposeImagePrompt,
		Messages:    p.Messages(),
		Model:       a.settings.TextModel,
		Temperature: gateway.Temperature(a.settings.TemperatureImagePrompt),
		MaxTokens:   a.settings.MaxTokensImagePrompt,
		JSONMode:    true,
	})
	if err != nil {
		return "", fmt.Errorf("generate image prompt: %w", err)
	}
	prompt, err := ParseImagePrompt(raw)
	if err != nil {
		return "", err
	}
	a.logger.Debug("image prompt generated", zap.String("prompt", prompt))
	return prompt, nil
}

// GenerateImage renders prompt and downloads the result. A copy is saved in
// the background when an ImageStore is configured.
func (a *Agent) GenerateImage(ctx context.Context, prompt string) (string, []byte, error) {
	url, err := a.gw.GenerateImage(ctx, gateway.ImageRequest{
		Prompt:  prompt,
		Model:   a.settings.ImageModel,
		Size:    a.settings.ImageSize,
		Quality: a.settings.ImageQuality,
		Count:   1,
	})
	if err != nil {
		return "", nil, fmt.Errorf("generate image: %w", err)
	}
	data, err := a.gw.Download(ctx, url)
	if err != nil {
		return "", nil, fmt.Errorf("download image: %w", err)
	}
	a.archive(data)
	return url, data, nil
}

func (a *Agent) archive(data []byte) {
	if a.store == nil {
		return
	}
	a.saves.Add(1)
	go func() {
		defer a.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		path, err := a.store.Save(ctx, data, ".png")
		if err != nil {
			a.logger.Warn("image not archived", zap.Error(err))
			return
		}
		a.logger.Info("image archived", zap.String("path", path))
	}()
}

// GenerateCompletePost runs text, image prompt and image strictly in order.
// Any stage failure aborts the whole pipeline.
func (a *Agent) GenerateCompletePost(ctx context.Context, b Brief, idea Idea) (Complete, error) {
	start := time.Now()
	post, err := a.GeneratePostText(ctx, b, idea)
	if err != nil {
		return Complete{}, err
	}
	prompt, err := a.GenerateImagePrompt(ctx, b, post)
	if err != nil {
		return Complete{}, err
	}
	url, data, err := a.GenerateImage(ctx, prompt)
	if err != nil {
		return Complete{}, err
	}
	a.logger.Info("complete post generated", zap.Duration("took", time.Since(start)))
	return Complete{Post: post, ImagePrompt: prompt, ImageURL: url, Image: data}, nil
}

// Reformulate returns a short display form of a raw answer, or text itself on any failure.
func (a *Agent) Reformulate(ctx context.Context, field Field, text string) string {
	p, ok := BuildReformulatePrompt(field, text)
	if !ok {
		return text
	}
	raw, err := a.gw.ChatComplete(ctx, gateway.ChatRequest{
		Purpose:     gateway.PurposeReformulate,
		Messages:    p.Messages(),
		Model:       a.settings.TextModel,
		Temperature: gateway.Temperature(a.settings.TemperatureReformulate),
		MaxTokens:   a.settings.MaxTokensReformulate,
	})
	if err != nil {
		a.logger.Warn("reformulation failed, keeping raw text", zap.String("field", string(field)), zap.Error(err))
		return text
	}
	out := cleanReformulation(raw)
	if out == "" {
		return text
	}
	a.logger.Debug("reformulated", zap.String("field", string(field)), zap.String("from", text), zap.String("to", out))
	return out
}

// Check sends a tiny completion to verify the configured endpoint and key.
func (a *Agent) Check(ctx context.Context) error {
	_, err := a.gw.ChatComplete(ctx, gateway.ChatRequest{
		Purpose:   gateway.PurposeCheck,
		Messages:  []gateway.Message{{Role: gateway.RoleUser, Content: "Ответь одним словом: OK"}},
		Model:     a.settings.TextModel,
		MaxTokens: 10,
	})
	if err != nil {
		return fmt.Errorf("connection check: %w", err)
	}
	return nil
}

// Wait blocks until background image saves finish.
func (a *Agent) Wait() {
	a.saves.Wait()
}
