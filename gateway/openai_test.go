package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"content_ideas_assistant/failure"
)

const testKey = "sk-test-secret-key"

type fakeAPI struct {
	mu     sync.Mutex
	bodies []string
	handle func(w http.ResponseWriter, r *http.Request, body string)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(raw))
	f.mu.Unlock()
	f.handle(w, r, string(raw))
}

func (f *fakeAPI) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[len(f.bodies)-1]
}

func completion(content, finish, refusal string) string {
	msg := map[string]any{"role": "assistant", "content": content, "refusal": nil}
	if refusal != "" {
		msg["refusal"] = refusal
	}
	return mustJSON(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "m",
		"choices": []any{map[string]any{"index": 0, "finish_reason": finish, "message": msg}},
		"usage":   map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
}

func newTestGateway(t *testing.T, api *fakeAPI) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	gw, err := NewOpenAI(Settings{
		APIKey:           testKey,
		BaseURL:          srv.URL + "/v1/",
		Timeout:          5 * time.Second,
		MaxRetries:       0,
		DownloadAttempts: 3,
	}, nil)
	require.NoError(t, err)
	return gw
}

func TestChatCompleteAdaptsParametersToModel(t *testing.T) {
	tests := []struct {
		model           string
		wantTemperature bool
		wantTokenField  string
	}{
		{"gpt-4o-mini", true, "max_tokens"},
		{"gpt-4o", true, "max_tokens"},
		{"gpt-5", false, "max_completion_tokens"},
		{"GPT-5-mini", false, "max_completion_tokens"},
		{"o1-preview", false, "max_completion_tokens"},
		{"o1-mini", false, "max_completion_tokens"},
		{"o3-mini", false, "max_completion_tokens"},
		{"o3", false, "max_completion_tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			api := &fakeAPI{handle: func(w http.ResponseWriter, _ *http.Request, _ string) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, completion("ok", "stop", ""))
			}}
			gw := newTestGateway(t, api)

			_, err := gw.ChatComplete(context.Background(), ChatRequest{
				Messages:    []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}},
				Model:       tt.model,
				Temperature: Temperature(0.7),
				MaxTokens:   1500,
			})
			require.NoError(t, err)

			body := api.lastBody()
			assert.Equal(t, tt.wantTemperature, gjson.Get(body, "temperature").Exists())
			assert.Equal(t, int64(1500), gjson.Get(body, tt.wantTokenField).Int())
			other := "max_tokens"
			if tt.wantTokenField == "max_tokens" {
				other = "max_completion_tokens"
			}
			assert.False(t, gjson.Get(body, other).Exists())
			assert.Equal(t, tt.wantTemperature, SupportsTemperature(tt.model))
			assert.Equal(t, !tt.wantTemperature, UsesCompletionTokens(tt.model))
		})
	}
}

func TestChatCompleteJSONModeAndRoles(t *testing.T) {
	api := &fakeAPI{handle: func(w http.ResponseWriter, _ *http.Request, _ string) {
		io.WriteString(w, completion(`{"a":1}`, "stop", ""))
	}}
	gw := newTestGateway(t, api)

	out, err := gw.ChatComplete(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleAssistant, Content: "prev"},
			{Role: RoleUser, Content: "now"},
		},
		Model:    "gpt-4o-mini",
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)

	body := api.lastBody()
	assert.Equal(t, "json_object", gjson.Get(body, "response_format.type").String())
	assert.Equal(t, "assistant", gjson.Get(body, "messages.1.role").String())
	assert.False(t, gjson.Get(body, "temperature").Exists())
}

func TestChatCompleteQualityFailures(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		json   bool
		reason failure.Reason
	}{
		{"empty content", completion("   ", "stop", ""), false, failure.ReasonEmpty},
		{"refusal", completion("", "stop", "I can't help with that"), false, failure.ReasonRefused},
		{"truncated json", completion(`{"post": {"title": "x"`, "length", ""), true, failure.ReasonTruncated},
		{"no choices", `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, false, failure.ReasonNoChoices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{handle: func(w http.ResponseWriter, _ *http.Request, _ string) {
				io.WriteString(w, tt.reply)
			}}
			gw := newTestGateway(t, api)

			_, err := gw.ChatComplete(context.Background(), ChatRequest{Model: "gpt-5", JSONMode: tt.json})
			require.Error(t, err)
			fe, ok := failure.As(err)
			require.True(t, ok)
			assert.Equal(t, failure.KindGeneration, fe.Kind)
			assert.Equal(t, tt.reason, fe.Reason)
			assert.True(t, failure.IsQualityDegraded(err))
		})
	}
}

func TestChatCompleteLengthWithoutJSONModeKeepsText(t *testing.T) {
	api := &fakeAPI{handle: func(w http.ResponseWriter, _ *http.Request, _ string) {
		io.WriteString(w, completion("Выпечка хлеба", "length", ""))
	}}
	gw := newTestGateway(t, api)

	out, err := gw.ChatComplete(context.Background(), ChatRequest{Model: "gpt-4o-mini", MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "Выпечка хлеба", out)
}

func TestChatCompleteClassifiesHTTPErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		body       string
		kind       failure.Kind
		retryAfter time.Duration
	}{
		{"throttled with hint", http.StatusTooManyRequests, map[string]string{"Retry-After": "7"}, `{"error":{"message":"slow down","type":"rate_limit"}}`, failure.KindThrottling, 7 * time.Second},
		{"throttled without hint", http.StatusTooManyRequests, nil, `{"error":{"message":"slow down"}}`, failure.KindThrottling, failure.DefaultRetryAfter},
		{"unauthorized", http.StatusUnauthorized, nil, `{"error":{"message":"Incorrect API key provided"}}`, failure.KindAuthentication, 0},
		{"api key phrasing", http.StatusForbidden, nil, `{"error":{"message":"invalid api key"}}`, failure.KindAuthentication, 0},
		{"generic", http.StatusBadRequest, nil, `{"error":{"message":"bad model"}}`, failure.KindAPI, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{handle: func(w http.ResponseWriter, _ *http.Request, _ string) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}}
			gw := newTestGateway(t, api)

			_, err := gw.ChatComplete(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
			require.Error(t, err)
			fe, ok := failure.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, tt.retryAfter, fe.RetryAfter)
			assert.False(t, failure.IsQualityDegraded(err))
		})
	}
}

func TestErrorsNeverCarryTheAPIKey(t *testing.T) {
	api := &fakeAPI{handle: func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"upstream rejected key `+testKey+`"}}`)
	}}
	gw := newTestGateway(t, api)

	_, err := gw.ChatComplete(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testKey)
}

func TestConnectivityFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw, err := NewOpenAI(Settings{APIKey: testKey, BaseURL: url + "/v1/", Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = gw.ChatComplete(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.Equal(t, failure.KindConnectivity, failure.KindOf(err))
}

func TestGenerateImageClampsAndClassifiesPolicy(t *testing.T) {
	var policy bool
	api := &fakeAPI{handle: func(w http.ResponseWriter, _ *http.Request, _ string) {
		if policy {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"message":"Your request was rejected as a result of our safety system.","code":"content_policy_violation"}}`)
			return
		}
		io.WriteString(w, `{"created":1,"data":[{"url":"https://cdn.example/img.png"}]}`)
	}}
	gw := newTestGateway(t, api)

	url, err := gw.GenerateImage(context.Background(), ImageRequest{Prompt: "bread", Model: "dall-e-3", Quality: "hd", Count: 4})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/img.png", url)
	body := api.lastBody()
	assert.Equal(t, int64(1), gjson.Get(body, "n").Int())
	assert.Equal(t, "hd", gjson.Get(body, "quality").String())
	assert.Equal(t, "1024x1024", gjson.Get(body, "size").String())
	assert.Equal(t, "url", gjson.Get(body, "response_format").String())

	_, err = gw.GenerateImage(context.Background(), ImageRequest{Prompt: "bread", Model: "dall-e-2", Quality: "hd", Count: 2})
	require.NoError(t, err)
	body = api.lastBody()
	assert.Equal(t, "standard", gjson.Get(body, "quality").String())
	assert.Equal(t, int64(2), gjson.Get(body, "n").Int())

	policy = true
	_, err = gw.GenerateImage(context.Background(), ImageRequest{Prompt: "bad", Model: "dall-e-3"})
	require.Error(t, err)
	assert.Equal(t, failure.KindPolicyRejection, failure.KindOf(err))
}

func TestTranscribeSendsLanguageAndModel(t *testing.T) {
	api := &fakeAPI{handle: func(w http.ResponseWriter, r *http.Request, body string) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"))
		assert.Contains(t, body, "whisper-1")
		assert.Contains(t, body, `name="language"`)
		io.WriteString(w, `{"text":"  пеку хлеб  "}`)
	}}
	gw := newTestGateway(t, api)

	text, err := gw.Transcribe(context.Background(), []byte("OggS...."), "ru")
	require.NoError(t, err)
	assert.Equal(t, "пеку хлеб", text)

	_, err = gw.Transcribe(context.Background(), nil, "ru")
	assert.Equal(t, failure.KindGeneration, failure.KindOf(err))
}

func TestClampImage(t *testing.T) {
	got := ClampImage(ImageRequest{Model: "DALL-E-3", Count: 3})
	assert.Equal(t, ImageRequest{Model: "DALL-E-3", Count: 1, Quality: "standard", Size: "1024x1024"}, got)

	got = ClampImage(ImageRequest{Model: "gpt-image-1", Quality: "high", Size: "512x512"})
	assert.Equal(t, "standard", got.Quality)
	assert.Equal(t, "512x512", got.Size)
	assert.Equal(t, 1, got.Count)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Settings{Provider: "gemini"}, nil)
	assert.Error(t, err)

	gw, err := New(Settings{Provider: "mock"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, gw)

	_, err = New(Settings{Provider: "openai"}, nil)
	assert.Error(t, err, "api key is required")
}
