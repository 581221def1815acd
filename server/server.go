package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"content_ideas_assistant/delivery"
	"content_ideas_assistant/dialogue"
	"content_ideas_assistant/render"
)

// Chat is the dialogue surface exposed over HTTP.
type Chat interface {
	StartSession(ctx context.Context, u dialogue.User) ([]dialogue.Message, error)
	HandleUtterance(ctx context.Context, u dialogue.User, text string) ([]dialogue.Message, error)
	HandleSelection(ctx context.Context, u dialogue.User, token string) ([]dialogue.Message, error)
	HandleVoice(ctx context.Context, u dialogue.User, audio []byte) ([]dialogue.Message, error)
	Session(ctx context.Context, userID int64) (*dialogue.Session, error)
}

type Options struct {
	RequestTimeout time.Duration
	Delivery       delivery.Options
	// Typing makes WebSocket clients wait out each message's typing delay.
	Typing         bool
	OriginPatterns []string
}

type Server struct {
	chat   Chat
	opts   Options
	logger *zap.Logger
}

const maxVoiceBytes = 20 << 20

func New(chat Chat, opts Options, logger *zap.Logger) (*Server, error) {
	if chat == nil {
		return nil, errors.New("chat controller required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 3 * time.Minute
	}
	if len(opts.OriginPatterns) == 0 {
		opts.OriginPatterns = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{chat: chat, opts: opts, logger: logger.Named("server")}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.logMiddleware)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api/chats/{userID}", func(r chi.Router) {
		r.Get("/", s.handleSession)
		r.Post("/start", s.handleStart)
		r.Post("/messages", s.handleMessage)
		r.Post("/actions", s.handleAction)
		r.Post("/voice", s.handleVoice)
	})
	r.Get("/ws/chat", s.handleWS)
	return r
}

// --- Handlers ---

type textReq struct {
	Text string `json:"text"`
}

type actionReq struct {
	Action string `json:"action"`
}

type chatResp struct {
	Messages []outMessage `json:"messages"`
}

// outMessage is a dialogue message as web clients see it.
type outMessage struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	HTML          string            `json:"html,omitempty"`
	Image         string            `json:"image,omitempty"`
	Buttons       []dialogue.Button `json:"buttons,omitempty"`
	RemoveButtons string            `json:"remove_buttons,omitempty"`
	TypingDelayMS int64             `json:"typing_delay_ms"`
}

type sessionResp struct {
	UserID         int64             `json:"user_id"`
	State          string            `json:"state"`
	Answers        map[string]string `json:"answers"`
	Display        map[string]string `json:"display"`
	OffTopicCount  int               `json:"off_topic_count"`
	OffensiveCount int               `json:"offensive_count"`
	Ideas          any               `json:"ideas,omitempty"`
	SelectedIdea   any               `json:"selected_idea,omitempty"`
	NeedsImage     bool              `json:"needs_image"`
	LastActivity   time.Time         `json:"last_activity"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	sess, err := s.chat.Session(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	resp := sessionResp{
		UserID:         sess.UserID,
		State:          sess.State.String(),
		Answers:        map[string]string{},
		Display:        map[string]string{},
		OffTopicCount:  sess.OffTopicCount,
		OffensiveCount: sess.OffensiveCount,
		NeedsImage:     sess.NeedsImage,
		LastActivity:   sess.LastActivity,
	}
	for k, v := range sess.Answers {
		resp.Answers[string(k)] = v
	}
	for k, v := range sess.Display {
		resp.Display[string(k)] = v
	}
	if len(sess.Ideas) > 0 {
		resp.Ideas = sess.Ideas
	}
	if sess.SelectedIdea != nil {
		resp.SelectedIdea = sess.SelectedIdea
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	msgs, err := s.chat.StartSession(ctx, u)
	s.respond(w, r, msgs, err)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	var req textReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	msgs, err := s.chat.HandleUtterance(ctx, u, req.Text)
	s.respond(w, r, msgs, err)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	var req actionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	msgs, err := s.chat.HandleSelection(ctx, u, req.Action)
	s.respond(w, r, msgs, err)
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxVoiceBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "audio body is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	msgs, err := s.chat.HandleVoice(ctx, u, audio)
	s.respond(w, r, msgs, err)
}

// --- Helpers ---

// user reads the chat user from the path (or the "user" query parameter)
// and the optional display name.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (dialogue.User, bool) {
	raw := chi.URLParam(r, "userID")
	if raw == "" {
		raw = r.URL.Query().Get("user")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return dialogue.User{}, false
	}
	name := r.Header.Get("X-User-Name")
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	return dialogue.User{ID: id, ChatID: id, Name: name}, true
}

// respond runs msgs through the delivery layer into a JSON body.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, msgs []dialogue.Message, err error) {
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	out := &collector{logger: s.logger}
	d := delivery.NewDispatcher(out, s.opts.Delivery, s.logger)
	if err := d.Deliver(r.Context(), 0, msgs); err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResp{Messages: out.msgs})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.Error("request failed",
		zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, status, http.StatusText(status))
}

// collector is the delivery.Sender of a single HTTP response.
type collector struct {
	logger *zap.Logger
	msgs   []outMessage
}

func (c *collector) SendText(_ context.Context, _ int64, m dialogue.Message) error {
	c.msgs = append(c.msgs, toOut(m, c.logger))
	return nil
}

func (c *collector) SendImage(_ context.Context, _ int64, m dialogue.Message) error {
	c.msgs = append(c.msgs, toOut(m, c.logger))
	return nil
}

func toOut(m dialogue.Message, logger *zap.Logger) outMessage {
	html, err := render.HTML(m.Text)
	if err != nil {
		logger.Warn("markdown not rendered", zap.String("message_id", m.ID), zap.Error(err))
	}
	out := outMessage{
		ID:            m.ID,
		Text:          m.Text,
		HTML:          html,
		Buttons:       m.Buttons,
		RemoveButtons: m.RemoveButtons,
		TypingDelayMS: m.TypingDelay.Milliseconds(),
	}
	if len(m.Image) > 0 {
		out.Image = base64.StdEncoding.EncodeToString(m.Image)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
