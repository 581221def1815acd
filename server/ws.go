package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"content_ideas_assistant/delivery"
	"content_ideas_assistant/dialogue"
)

// wsIn is a client frame: {"type": "start"}, {"type": "text", "text": ...},
// {"type": "action", "action": ...} or {"type": "voice", "audio": base64}.
type wsIn struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Action string `json:"action,omitempty"`
	Audio  string `json:"audio,omitempty"`
}

// wsOut is a server frame of type "message", "typing" or "error".
type wsOut struct {
	Type    string      `json:"type"`
	Message *outMessage `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	connID := uuid.NewString()
	logger := s.logger.With(zap.Int64("user_id", u.ID), zap.String("conn_id", connID))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.opts.OriginPatterns})
	if err != nil {
		logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "bye")
	ws.SetReadLimit(maxVoiceBytes * 2)
	logger.Info("websocket connected")

	ctx := r.Context()
	sender := &wsSender{conn: ws, typing: s.opts.Typing, logger: logger}
	d := delivery.NewDispatcher(sender, s.opts.Delivery, logger)

	for {
		var in wsIn
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				logger.Info("websocket closed")
			} else {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		msgs, err := s.dispatchFrame(ctx, u, in)
		if err != nil {
			logger.Error("frame failed", zap.String("type", in.Type), zap.Error(err))
			if err := wsjson.Write(ctx, ws, wsOut{Type: "error", Error: frameError(err)}); err != nil {
				return
			}
			continue
		}
		if err := d.Deliver(ctx, u.ChatID, msgs); err != nil {
			logger.Warn("websocket delivery failed", zap.Error(err))
			return
		}
	}
}

var (
	errBadFrame = errors.New("unknown frame type")
	errBadAudio = errors.New("audio must be base64")
)

// frameError is the text sent back for a failed frame. Only client mistakes
// are described; anything else is reported as an internal error.
func frameError(err error) string {
	if errors.Is(err, errBadFrame) || errors.Is(err, errBadAudio) {
		return err.Error()
	}
	return http.StatusText(http.StatusInternalServerError)
}

func (s *Server) dispatchFrame(ctx context.Context, u dialogue.User, in wsIn) ([]dialogue.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	switch in.Type {
	case "start":
		return s.chat.StartSession(ctx, u)
	case "text":
		return s.chat.HandleUtterance(ctx, u, in.Text)
	case "action":
		return s.chat.HandleSelection(ctx, u, in.Action)
	case "voice":
		audio, err := base64.StdEncoding.DecodeString(in.Audio)
		if err != nil {
			return nil, errBadAudio
		}
		return s.chat.HandleVoice(ctx, u, audio)
	default:
		return nil, errBadFrame
	}
}

// wsSender writes dialogue messages as frames on one connection.
type wsSender struct {
	conn   *websocket.Conn
	typing bool
	logger *zap.Logger
}

func (ws *wsSender) SendText(ctx context.Context, _ int64, m dialogue.Message) error {
	return ws.send(ctx, m)
}

func (ws *wsSender) SendImage(ctx context.Context, _ int64, m dialogue.Message) error {
	return ws.send(ctx, m)
}

func (ws *wsSender) send(ctx context.Context, m dialogue.Message) error {
	if ws.typing && m.TypingDelay > 0 {
		if err := wsjson.Write(ctx, ws.conn, wsOut{Type: "typing"}); err != nil {
			return err
		}
		t := time.NewTimer(m.TypingDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	out := toOut(m, ws.logger)
	return wsjson.Write(ctx, ws.conn, wsOut{Type: "message", Message: &out})
}
