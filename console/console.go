// Package console is a line-based terminal transport for the dialogue.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"content_ideas_assistant/delivery"
	"content_ideas_assistant/dialogue"
	"content_ideas_assistant/render"
)

// Chat is the dialogue surface the console drives.
type Chat interface {
	StartSession(ctx context.Context, u dialogue.User) ([]dialogue.Message, error)
	HandleUtterance(ctx context.Context, u dialogue.User, text string) ([]dialogue.Message, error)
	HandleSelection(ctx context.Context, u dialogue.User, token string) ([]dialogue.Message, error)
	HandleVoice(ctx context.Context, u dialogue.User, audio []byte) ([]dialogue.Message, error)
}

// ImageSaver stores images the terminal cannot show.
type ImageSaver interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
}

type Options struct {
	User     dialogue.User
	Terminal *render.Terminal
	Images   ImageSaver
	Typing   bool
	Delivery delivery.Options
}

type Console struct {
	chat   Chat
	in     io.Reader
	out    io.Writer
	opts   Options
	logger *zap.Logger
}

func New(chat Chat, in io.Reader, out io.Writer, opts Options, logger *zap.Logger) *Console {
	if opts.User.ID == 0 {
		opts.User = dialogue.User{ID: 1, ChatID: 1, Name: "друг"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{chat: chat, in: in, out: out, opts: opts, logger: logger.Named("console")}
}

const help = "Команды: /start - новый диалог, !<action> - нажать кнопку, /voice <файл> - голосовое, /quit - выход"

// Run starts a session and reads lines until EOF, /quit or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	d := delivery.NewDispatcher(&sender{c: c}, c.opts.Delivery, c.logger)
	fmt.Fprintln(c.out, help)

	msgs, err := c.chat.StartSession(ctx, c.opts.User)
	if err != nil {
		return err
	}
	if err := d.Deliver(ctx, c.opts.User.ChatID, msgs); err != nil {
		return err
	}

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		msgs, err := c.handle(ctx, line)
		if err != nil {
			c.logger.Error("turn failed", zap.Error(err))
			fmt.Fprintf(c.out, "ошибка: %v\n", err)
			continue
		}
		if err := d.Deliver(ctx, c.opts.User.ChatID, msgs); err != nil {
			return err
		}
	}
}

func (c *Console) handle(ctx context.Context, line string) ([]dialogue.Message, error) {
	u := c.opts.User
	switch {
	case line == "/help":
		fmt.Fprintln(c.out, help)
		return nil, nil
	case strings.HasPrefix(line, "!"):
		return c.chat.HandleSelection(ctx, u, strings.TrimPrefix(line, "!"))
	case strings.HasPrefix(line, "/voice"):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/voice"))
		if path == "" {
			return nil, errors.New("usage: /voice <file>")
		}
		audio, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read voice file: %w", err)
		}
		return c.chat.HandleVoice(ctx, u, audio)
	default:
		return c.chat.HandleUtterance(ctx, u, line)
	}
}

type sender struct {
	c *Console
}

func (s *sender) SendText(ctx context.Context, _ int64, m dialogue.Message) error {
	return s.c.print(ctx, m, "")
}

func (s *sender) SendImage(ctx context.Context, _ int64, m dialogue.Message) error {
	note := fmt.Sprintf("🖼  изображение: %d байт", len(m.Image))
	if s.c.opts.Images != nil {
		path, err := s.c.opts.Images.Save(ctx, m.Image, "png")
		if err != nil {
			return err
		}
		note = "🖼  изображение сохранено: " + path
	}
	return s.c.print(ctx, m, note)
}

func (c *Console) print(ctx context.Context, m dialogue.Message, note string) error {
	if c.opts.Typing && m.TypingDelay > 0 {
		t := time.NewTimer(m.TypingDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	text := m.Text
	if c.opts.Terminal != nil {
		text = c.opts.Terminal.Render(text)
	}
	if note != "" {
		fmt.Fprintln(c.out, note)
	}
	fmt.Fprintln(c.out, text)
	for _, b := range m.Buttons {
		fmt.Fprintf(c.out, "  [%s]  !%s\n", b.Label, b.Action)
	}
	fmt.Fprintln(c.out)
	return nil
}
