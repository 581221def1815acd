// Package delivery sends dialogue messages through a transport and degrades
// to text when an image cannot be sent.
package delivery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"content_ideas_assistant/dialogue"
)

// ImageNotice prefixes the text of a post whose image could not be sent.
const ImageNotice = "⚠️ _К сожалению, не удалось отправить изображение из-за проблем с сетью._\n" +
	"_Но вот твой готовый текст поста:_\n\n"

// Sender is a chat transport.
type Sender interface {
	SendText(ctx context.Context, chatID int64, m dialogue.Message) error
	// SendImage sends m.Image with m.Text as its caption.
	SendImage(ctx context.Context, chatID int64, m dialogue.Message) error
}

// Options tunes image retries.
type Options struct {
	ImageAttempts int
	ImagePause    time.Duration
	// Sleep waits between attempts; it returns early with ctx.Err().
	Sleep func(ctx context.Context, d time.Duration) error
}

// Dispatcher delivers messages in order.
type Dispatcher struct {
	sender Sender
	opts   Options
	logger *zap.Logger
}

func NewDispatcher(sender Sender, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.ImageAttempts <= 0 {
		opts.ImageAttempts = 3
	}
	if opts.ImagePause <= 0 {
		opts.ImagePause = 2 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sender: sender, opts: opts, logger: logger.Named("delivery")}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deliver sends msgs to chatID. Image failures never surface: after the last
// attempt the text is sent alone with ImageNotice. Text failures are returned.
func (d *Dispatcher) Deliver(ctx context.Context, chatID int64, msgs []dialogue.Message) error {
	for _, m := range msgs {
		if len(m.Image) == 0 {
			if err := d.sender.SendText(ctx, chatID, m); err != nil {
				return fmt.Errorf("send message %s: %w", m.ID, err)
			}
			continue
		}
		if d.sendImage(ctx, chatID, m) {
			continue
		}
		fallback := m
		fallback.Image = nil
		fallback.Text = dialogue.Truncate(ImageNotice+m.Text, dialogue.MaxTextRunes)
		if err := d.sender.SendText(ctx, chatID, fallback); err != nil {
			return fmt.Errorf("send fallback %s: %w", m.ID, err)
		}
	}
	return nil
}

func (d *Dispatcher) sendImage(ctx context.Context, chatID int64, m dialogue.Message) bool {
	for attempt := 1; attempt <= d.opts.ImageAttempts; attempt++ {
		err := d.sender.SendImage(ctx, chatID, m)
		if err == nil {
			return true
		}
		d.logger.Warn("image delivery failed",
			zap.Int64("chat_id", chatID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.opts.ImageAttempts),
			zap.Error(err))
		if attempt == d.opts.ImageAttempts {
			break
		}
		if err := d.opts.Sleep(ctx, d.opts.ImagePause); err != nil {
			break
		}
	}
	d.logger.Error("image dropped, sending text only", zap.Int64("chat_id", chatID))
	return false
}
