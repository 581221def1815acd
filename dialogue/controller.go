// Package dialogue drives the conversation: it owns per-user sessions, gates
// free text through moderation and calls the generation stages at the right
// transitions.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"content_ideas_assistant/generator"
	"content_ideas_assistant/moderation"
)

// Generator is the part of the generation agent the dialogue needs.
type Generator interface {
	GenerateIdeas(ctx context.Context, b generator.Brief) ([]generator.Idea, error)
	GeneratePostText(ctx context.Context, b generator.Brief, idea generator.Idea) (generator.Post, error)
	GenerateCompletePost(ctx context.Context, b generator.Brief, idea generator.Idea) (generator.Complete, error)
	Reformulate(ctx context.Context, field generator.Field, text string) string
}

// Moderator gates free-text replies.
type Moderator interface {
	Check(ctx context.Context, in moderation.Input) moderation.Outcome
}

// Transcriber turns voice messages into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// SessionStore keeps sessions by user id. Load returns nil, nil for unknown users.
type SessionStore interface {
	Load(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// Visit is what the registry remembers about a returning user.
type Visit struct {
	LastInteraction time.Time
	SessionCount    int
}

// Registry tracks returning users. Touch records a session start at now and
// returns the previous visit; found is false for first-time users.
type Registry interface {
	Touch(ctx context.Context, userID int64, now time.Time) (prev Visit, found bool, err error)
}

// Options tunes the controller.
type Options struct {
	// ReturningAfter separates a "welcome back" greeting from a short one.
	ReturningAfter time.Duration
	// Language is the transcription hint for voice messages.
	Language string
	Now      func() time.Time
	Pick     func(n int) int
}

// Controller is the conversation state machine.
type Controller struct {
	gen      Generator
	mod      Moderator
	stt      Transcriber
	sessions SessionStore
	registry Registry
	opts     Options
	logger   *zap.Logger

	locksMu sync.Mutex
	locks   map[int64]*userLock
}

// userLock serialises one user's turns. refs counts holders and waiters;
// the entry is dropped when it reaches zero.
type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewController(gen Generator, mod Moderator, stt Transcriber, sessions SessionStore, registry Registry, opts Options, logger *zap.Logger) (*Controller, error) {
	if gen == nil || mod == nil {
		return nil, errors.New("generator and moderator are required")
	}
	if sessions == nil || registry == nil {
		return nil, errors.New("session store and registry are required")
	}
	if opts.ReturningAfter <= 0 {
		opts.ReturningAfter = 12 * time.Hour
	}
	if opts.Language == "" {
		opts.Language = "ru"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Pick == nil {
		opts.Pick = rand.Intn
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		gen:      gen,
		mod:      mod,
		stt:      stt,
		sessions: sessions,
		registry: registry,
		opts:     opts,
		logger:   logger.Named("dialogue"),
		locks:    make(map[int64]*userLock),
	}, nil
}

func (c *Controller) lock(userID int64) func() {
	c.locksMu.Lock()
	l, ok := c.locks[userID]
	if !ok {
		l = &userLock{}
		c.locks[userID] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(c.locks, userID)
		}
		c.locksMu.Unlock()
	}
}

// with runs fn on the user's session under the per-user lock and saves it.
func (c *Controller) with(ctx context.Context, u User, fn func(s *Session) []Message) ([]Message, error) {
	unlock := c.lock(u.ID)
	defer unlock()

	s, err := c.sessions.Load(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", u.ID, err)
	}
	if s == nil {
		s = NewSession(u)
	}
	if u.ChatID != 0 {
		s.ChatID = u.ChatID
	}
	if u.Name != "" {
		s.Name = u.Name
	}

	msgs := fn(s)
	s.LastActivity = c.opts.Now()
	if id := lastButtons(msgs); id != "" {
		s.ButtonsMessageID = id
	}
	if err := c.sessions.Save(ctx, s); err != nil {
		return msgs, fmt.Errorf("save session %d: %w", u.ID, err)
	}
	return msgs, nil
}

func lastButtons(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(msgs[i].Buttons) > 0 {
			return msgs[i].ID
		}
	}
	return ""
}

// Session returns a copy of the user's session.
func (c *Controller) Session(ctx context.Context, userID int64) (*Session, error) {
	s, err := c.sessions.Load(ctx, userID)
	if err != nil || s == nil {
		return nil, err
	}
	return s.Clone(), nil
}

// StartSession greets the user and begins collecting the niche, discarding
// whatever state the previous session was in.
func (c *Controller) StartSession(ctx context.Context, u User) ([]Message, error) {
	return c.with(ctx, u, func(s *Session) []Message {
		return c.start(ctx, s)
	})
}

func (c *Controller) start(ctx context.Context, s *Session) []Message {
	stale := s.ButtonsMessageID
	s.Reset()
	s.State = StateCollectingNiche

	name := s.Name
	if name == "" {
		name = "друг"
	}
	now := c.opts.Now()
	prev, found, err := c.registry.Touch(ctx, s.UserID, now)
	if err != nil {
		c.logger.Warn("registry unavailable", zap.Int64("user_id", s.UserID), zap.Error(err))
		found = false
	}

	var text, tier string
	switch {
	case !found:
		tier, text = "first_time", firstTimeGreeting(name)
	case now.Sub(prev.LastInteraction) > c.opts.ReturningAfter:
		tier, text = "after_break", afterBreakGreeting(name)
	default:
		tier, text = "continue", continueGreeting(name, c.opts.Pick(len(shortGreetings)))
	}
	c.logger.Info("session started",
		zap.Int64("user_id", s.UserID),
		zap.String("greeting", tier),
		zap.Int("session", prev.SessionCount+1))

	m := reply(text)
	m.RemoveButtons = stale
	return []Message{m}
}

// HandleUtterance processes free text in the current state.
func (c *Controller) HandleUtterance(ctx context.Context, u User, text string) ([]Message, error) {
	text = strings.TrimSpace(text)
	return c.with(ctx, u, func(s *Session) []Message {
		if isRestart(text) {
			return c.start(ctx, s)
		}
		return c.utterance(ctx, s, text)
	})
}

func isRestart(text string) bool {
	return text == CommandStart || text == NewDialogText
}

func (c *Controller) utterance(ctx context.Context, s *Session, text string) []Message {
	c.logger.Debug("utterance",
		zap.Int64("user_id", s.UserID),
		zap.Stringer("state", s.State),
		zap.String("text", Truncate(text, 50)))

	switch {
	case s.State.Collecting():
		return c.collect(ctx, s, text)
	case s.State == StateInitial:
		return []Message{reply(textNotStarted)}
	case s.State == StateGeneratingIdeas || s.State == StateGeneratingPost:
		return []Message{reply(textBusy)}
	default:
		return []Message{reply(textNeedButtons)}
	}
}

func (c *Controller) collect(ctx context.Context, s *Session, text string) []Message {
	if text == "" {
		return []Message{reply(s.State.Question())}
	}
	out := c.mod.Check(ctx, moderation.Input{
		Step:           s.State.String(),
		Question:       s.State.Question(),
		Text:           text,
		OffTopicCount:  s.OffTopicCount,
		OffensiveCount: s.OffensiveCount,
	})
	s.OffTopicCount = out.OffTopicCount
	s.OffensiveCount = out.OffensiveCount
	if !out.Pass {
		if out.Terminate {
			c.logger.Info("session terminated by moderation",
				zap.Int64("user_id", s.UserID),
				zap.Bool("offensive", out.Offensive))
			stale := s.ButtonsMessageID
			s.Reset()
			m := reply(out.Reply)
			m.RemoveButtons = stale
			return []Message{m}
		}
		return []Message{reply(out.Reply)}
	}

	field, _ := s.State.Field()
	s.Answers[field] = text
	s.Display[field] = c.gen.Reformulate(ctx, field, text)

	switch s.State {
	case StateCollectingNiche:
		s.State = StateCollectingGoal
		return []Message{reply(nicheAccepted(s.display(field)))}
	case StateCollectingGoal:
		s.State = StateCollectingFormat
		return []Message{reply(goalAccepted(s.display(field)))}
	default:
		msgs := []Message{reply(formatAccepted(s.display(field)))}
		return append(msgs, c.generateIdeas(ctx, s)...)
	}
}

func (c *Controller) generateIdeas(ctx context.Context, s *Session) []Message {
	s.State = StateGeneratingIdeas
	s.Ideas = nil
	s.SelectedIdea = nil
	msgs := []Message{reply(textGeneratingIdeas)}

	ideas, err := c.gen.GenerateIdeas(ctx, s.Brief())
	if err != nil {
		c.logger.Error("idea generation failed", zap.Int64("user_id", s.UserID), zap.Error(err))
		s.State = StateCollectingFormat
		return append(msgs, reply(textIdeasFailed))
	}
	s.Ideas = ideas
	s.State = StateWaitingIdeaChoice
	return append(msgs, withButtons(FormatIdeas(ideas), ideaButtons(len(ideas))...))
}

// HandleSelection processes a button press.
func (c *Controller) HandleSelection(ctx context.Context, u User, token string) ([]Message, error) {
	token = strings.TrimSpace(token)
	return c.with(ctx, u, func(s *Session) []Message {
		return c.selection(ctx, s, token)
	})
}

func (c *Controller) selection(ctx context.Context, s *Session, token string) []Message {
	c.logger.Debug("selection", zap.Int64("user_id", s.UserID), zap.Stringer("state", s.State), zap.String("action", token))

	switch s.State {
	case StateWaitingIdeaChoice:
		if token == ActionRegenerateIdeas {
			return c.regenerate(ctx, s)
		}
		if id, ok := parseIdeaAction(token); ok {
			return c.chooseIdea(ctx, s, id)
		}
	case StateAskingImage:
		switch token {
		case ActionImageYes:
			return c.answerImage(ctx, s, true)
		case ActionImageNo:
			return c.answerImage(ctx, s, false)
		}
	case StateCompleted:
		switch token {
		case ActionCreateNew:
			stale := s.ButtonsMessageID
			s.Reset()
			s.State = StateCollectingNiche
			m := reply(textRestart)
			m.RemoveButtons = stale
			return []Message{m}
		case ActionFinish:
			stale := s.ButtonsMessageID
			s.Reset()
			m := reply(textFinish)
			m.RemoveButtons = stale
			return []Message{m}
		}
	}
	return []Message{reply(textStaleButton)}
}

// takeButtons returns the id of the message whose buttons should go away.
func takeButtons(s *Session) string {
	id := s.ButtonsMessageID
	s.ButtonsMessageID = ""
	return id
}

func (c *Controller) regenerate(ctx context.Context, s *Session) []Message {
	m := reply(textRegenerating)
	m.RemoveButtons = takeButtons(s)
	return append([]Message{m}, c.generateIdeas(ctx, s)...)
}

func (c *Controller) chooseIdea(ctx context.Context, s *Session, id int) []Message {
	idea, ok := s.Idea(id)
	if !ok {
		return []Message{reply(textIdeaNotFound)}
	}
	s.SelectedIdea = &idea

	confirm := reply(ideaChosen(idea.Title))
	confirm.RemoveButtons = takeButtons(s)
	msgs := []Message{confirm}
	s.NeedsImage = false

	if ShouldOfferImage(s.Answers[generator.FieldFormat]) {
		s.State = StateAskingImage
		q := illustrationQuestion(s.display(generator.FieldFormat))
		return append(msgs, withButtons(q, imageButtons...))
	}
	msgs = append(msgs, reply(textMakingText))
	return append(msgs, c.generatePost(ctx, s)...)
}

func (c *Controller) answerImage(ctx context.Context, s *Session, yes bool) []Message {
	s.NeedsImage = yes
	text := textMakingText
	if yes {
		text = textMakingPost
	}
	m := reply(text)
	m.RemoveButtons = takeButtons(s)
	return append([]Message{m}, c.generatePost(ctx, s)...)
}

func (c *Controller) generatePost(ctx context.Context, s *Session) []Message {
	s.State = StateGeneratingPost
	if s.SelectedIdea == nil {
		s.State = StateWaitingIdeaChoice
		return []Message{withButtons(textIdeaNotFound, ideaButtons(len(s.Ideas))...)}
	}
	brief, idea := s.Brief(), *s.SelectedIdea

	var (
		post  generator.Post
		image []byte
		err   error
	)
	if s.NeedsImage {
		var full generator.Complete
		full, err = c.gen.GenerateCompletePost(ctx, brief, idea)
		post, image = full.Post, full.Image
	} else {
		post, err = c.gen.GeneratePostText(ctx, brief, idea)
	}
	if err != nil {
		c.logger.Error("post generation failed",
			zap.Int64("user_id", s.UserID),
			zap.Bool("with_image", s.NeedsImage),
			zap.Error(err))
		s.State = StateWaitingIdeaChoice
		return []Message{withButtons(textPostFailed, ideaButtons(len(s.Ideas))...)}
	}

	result := reply(framePost(FormatPost(post)))
	result.Image = image
	s.State = StateCompleted
	c.logger.Info("post delivered", zap.Int64("user_id", s.UserID), zap.Bool("with_image", len(image) > 0))
	return []Message{result, withButtons(textDone, continueButtons...)}
}

// HandleVoice transcribes audio and feeds it into the collecting states.
func (c *Controller) HandleVoice(ctx context.Context, u User, audio []byte) ([]Message, error) {
	if c.stt == nil {
		return []Message{reply(textVoiceFailed)}, nil
	}
	return c.with(ctx, u, func(s *Session) []Message {
		text, err := c.stt.Transcribe(ctx, audio, c.opts.Language)
		if err != nil {
			c.logger.Warn("transcription failed", zap.Int64("user_id", s.UserID), zap.Error(err))
			return []Message{reply(textVoiceFailed)}
		}
		msgs := []Message{reply(voiceEcho(text))}
		switch {
		case s.State.Collecting():
			return append(msgs, c.collect(ctx, s, strings.TrimSpace(text))...)
		case s.State == StateInitial:
			return append(msgs, reply(textNotStarted))
		default:
			return append(msgs, reply(textNeedButtons))
		}
	})
}
