package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Reply is one scripted answer of the Mock.
type Reply struct {
	Text string
	Err  error
}

// Mock is an offline Gateway. Scripted replies are consumed per purpose in
// order; once a queue is empty it answers with canned content so the whole
// dialogue can run without a provider.
type Mock struct {
	mu     sync.Mutex
	script map[Purpose][]Reply
	calls  []ChatRequest
	images []ImageRequest

	ImageURL      string
	ImageErr      error
	Image         []byte
	DownloadErr   error
	Transcript    string
	TranscribeErr error
}

func NewMock() *Mock {
	return &Mock{
		script:     map[Purpose][]Reply{},
		ImageURL:   "mock://image/1.png",
		Image:      pngStub,
		Transcript: "Выпечка хлеба",
	}
}

// Script queues replies for purpose.
func (m *Mock) Script(p Purpose, replies ...Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[p] = append(m.script[p], replies...)
}

// Calls returns the chat requests seen for purpose; an empty purpose returns all.
func (m *Mock) Calls(p Purpose) []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ChatRequest
	for _, c := range m.calls {
		if p == "" || c.Purpose == p {
			out = append(out, c)
		}
	}
	return out
}

// ImageCalls returns the image requests seen so far.
func (m *Mock) ImageCalls() []ImageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ImageRequest(nil), m.images...)
}

func (m *Mock) ChatComplete(_ context.Context, req ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if q := m.script[req.Purpose]; len(q) > 0 {
		m.script[req.Purpose] = q[1:]
		return q[0].Text, q[0].Err
	}
	return cannedReply(req), nil
}

func (m *Mock) GenerateImage(_ context.Context, req ImageRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, ClampImage(req))
	if m.ImageErr != nil {
		return "", m.ImageErr
	}
	return m.ImageURL, nil
}

func (m *Mock) Download(context.Context, string) ([]byte, error) {
	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}
	return append([]byte(nil), m.Image...), nil
}

func (m *Mock) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	return m.Transcript, nil
}

func cannedReply(req ChatRequest) string {
	switch req.Purpose {
	case PurposeModeration:
		return `{"is_relevant": true, "reason": "ответ по теме", "suggestion": ""}`
	case PurposeIdeas:
		var sb strings.Builder
		sb.WriteString(`{"ideas": [`)
		for i := 1; i <= 5; i++ {
			if i > 1 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, `{"id": %d, "title": "Идея %d", "description": "Описание идеи %d", "key_elements": ["элемент %d.1", "элемент %d.2"]}`, i, i, i, i, i)
		}
		sb.WriteString(`]}`)
		return sb.String()
	case PurposePost:
		return `{"post": {"title": "Готовый пост", "content": "Текст поста, собранный без обращения к модели.", "hashtags": ["контент", "идеи"], "call_to_action": "Напишите нам!"}}`
	case PurposeImagePrompt:
		return `{"image_prompt": {"full_prompt": "A cozy bakery scene, warm light, photorealistic"}}`
	case PurposeReformulate:
		return quoted(lastUser(req.Messages))
	default:
		return "OK"
	}
}

func lastUser(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// quoted returns the first double-quoted fragment of s, or s itself.
func quoted(s string) string {
	start := strings.Index(s, `"`)
	if start < 0 {
		return s
	}
	end := strings.Index(s[start+1:], `"`)
	if end < 0 {
		return s
	}
	return s[start+1 : start+1+end]
}

// pngStub is a 1x1 transparent PNG.
var pngStub = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
