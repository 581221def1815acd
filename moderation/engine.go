// Package moderation keeps the dialogue on topic: a local profanity filter,
// a model-backed relevance check and an escalation policy on top of both.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"content_ideas_assistant/failure"
	"content_ideas_assistant/gateway"
)

// Verdict is the relevance classifier's answer.
type Verdict struct {
	IsRelevant bool
	Reason     string
	Suggestion string
}

// Settings tunes the relevance classifier and the escalation threshold.
type Settings struct {
	Model               string
	Temperature         float64
	MaxTokens           int
	MaxOffTopicAttempts int
}

func DefaultSettings() Settings {
	return Settings{Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 200, MaxOffTopicAttempts: 3}
}

// Engine evaluates user replies against the question they answer.
type Engine struct {
	gw       gateway.Gateway
	settings Settings
	logger   *zap.Logger
}

func NewEngine(gw gateway.Gateway, s Settings, logger *zap.Logger) (*Engine, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	d := DefaultSettings()
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = d.MaxTokens
	}
	if s.MaxOffTopicAttempts <= 0 {
		s.MaxOffTopicAttempts = d.MaxOffTopicAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{gw: gw, settings: s, logger: logger.Named("moderation")}, nil
}

// MaxAttempts is the number of off-topic replies tolerated before the session ends.
func (e *Engine) MaxAttempts() int { return e.settings.MaxOffTopicAttempts }

// Evaluate asks the classifier whether text answers question at step.
// Every failure is reported as failure.KindModeration.
func (e *Engine) Evaluate(ctx context.Context, step, question, text string) (Verdict, error) {
	const op = "moderation"
	raw, err := e.gw.ChatComplete(ctx, gateway.ChatRequest{
		Purpose:     gateway.PurposeModeration,
		Messages:    buildPrompt(step, question, text),
		Model:       e.settings.Model,
		Temperature: gateway.Temperature(e.settings.Temperature),
		MaxTokens:   e.settings.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return Verdict{}, failure.Wrap(op, failure.KindModeration, err, "relevance check failed")
	}

	s := strings.TrimSpace(raw)
	if !gjson.Valid(s) {
		return Verdict{}, failure.New(op, failure.KindModeration, "verdict is not valid JSON")
	}
	doc := gjson.Parse(s)
	rel := doc.Get("is_relevant")
	if !rel.IsBool() {
		return Verdict{}, failure.New(op, failure.KindModeration, "field 'is_relevant' is missing or not a boolean")
	}
	v := Verdict{
		IsRelevant: rel.Bool(),
		Reason:     strings.TrimSpace(doc.Get("reason").String()),
		Suggestion: strings.TrimSpace(doc.Get("suggestion").String()),
	}
	e.logger.Info("relevance verdict",
		zap.String("step", step),
		zap.Bool("relevant", v.IsRelevant),
		zap.String("reason", v.Reason))
	return v, nil
}

// Input is the moderation context of one user reply.
type Input struct {
	Step           string
	Question       string
	Text           string
	OffTopicCount  int
	OffensiveCount int
}

// Outcome tells the caller what to do with the reply. When Pass is false,
// Reply must be sent; when Terminate is set the session must be cleared.
type Outcome struct {
	Pass           bool
	Reply          string
	Terminate      bool
	Offensive      bool
	OffTopicCount  int
	OffensiveCount int
}

// Check gates a reply. Profanity is handled locally without a remote call;
// otherwise the classifier decides, and its failure treats the reply as relevant.
func (e *Engine) Check(ctx context.Context, in Input) Outcome {
	out := Outcome{OffTopicCount: in.OffTopicCount, OffensiveCount: in.OffensiveCount}

	if IsOffensive(in.Text) {
		out.Offensive = true
		out.OffensiveCount++
		out.OffTopicCount++
		e.logger.Warn("offensive reply", zap.String("step", in.Step), zap.Int("occurrence", out.OffensiveCount))
		if out.OffensiveCount == 1 {
			out.Reply = RespectRequest
			return out
		}
		out.Reply = OffensiveGoodbye
		out.Terminate = true
		return out
	}

	v, err := e.Evaluate(ctx, in.Step, in.Question, in.Text)
	if err != nil {
		e.logger.Error("moderation unavailable, accepting reply", zap.String("step", in.Step), zap.Error(err))
		out.Pass = true
		out.OffTopicCount = 0
		return out
	}
	if v.IsRelevant {
		out.Pass = true
		out.OffTopicCount = 0
		return out
	}

	out.OffTopicCount++
	if out.OffTopicCount > e.settings.MaxOffTopicAttempts {
		e.logger.Info("off-topic limit reached", zap.String("step", in.Step), zap.Int("attempts", out.OffTopicCount))
		out.Reply = Farewell
		out.Terminate = true
		return out
	}
	out.Reply = Redirection(out.OffTopicCount, in.Question, v.Suggestion)
	return out
}

const moderatorRole = "Ты - модератор диалога. Твоя задача объективно оценивать релевантность сообщений."

func buildPrompt(step, question, text string) []gateway.Message {
	var sb strings.Builder
	sb.WriteString("Бот помогает пользователю придумать контент и задает вопросы по шагам.\n\n")
	fmt.Fprintf(&sb, "Текущий этап: %s\n", step)
	fmt.Fprintf(&sb, "Вопрос бота: %s\n", question)
	fmt.Fprintf(&sb, "Ответ пользователя: %s\n\n", text)
	sb.WriteString("Определи, отвечает ли пользователь на вопрос. Короткие, неграмотные или разговорные ответы по теме считаются релевантными. ")
	sb.WriteString("Нерелевантны попытки сменить тему, вопросы не по делу, бессмысленный набор символов.\n\n")
	sb.WriteString("Если ответ нерелевантен, в suggestion дай короткое дружелюбное сообщение, которое вернет пользователя к вопросу и повторит его.\n\n")
	sb.WriteString("Ответь строго в формате JSON:\n")
	sb.WriteString(`{"is_relevant": true, "reason": "...", "suggestion": "..."}`)
	return []gateway.Message{
		{Role: gateway.RoleSystem, Content: moderatorRole},
		{Role: gateway.RoleUser, Content: sb.String()},
	}
}
