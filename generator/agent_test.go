package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content_ideas_assistant/failure"
	"content_ideas_assistant/gateway"
)

var bakery = Brief{Niche: "Выпечка хлеба", Goal: "Привлечение клиентов", Format: "Пост для Instagram"}

func newTestAgent(t *testing.T, opts ...Option) (*Agent, *gateway.Mock) {
	t.Helper()
	mock := gateway.NewMock()
	a, err := NewAgent(mock, DefaultSettings(), opts...)
	require.NoError(t, err)
	return a, mock
}

func TestNewAgentRequiresGateway(t *testing.T) {
	_, err := NewAgent(nil, DefaultSettings())
	assert.Error(t, err)
}

func TestGenerateIdeasNormalisesBatch(t *testing.T) {
	a, mock := newTestAgent(t)
	mock.Script(gateway.PurposeIdeas, gateway.Reply{Text: "```json\n" + `{"ideas": [
		{"id": "first", "title": " A ", "description": "a", "key_elements": ["x", "  "]},
		{"id": 9, "title": "B", "description": "b", "key_elements": []},
		{"id": 3.5, "title": "C", "description": "c", "key_elements": ["y"]},
		{"id": 1, "title": "D", "description": "d", "key_elements": ["z"]},
		{"id": 2, "title": "E", "description": "e", "key_elements": ["w"]},
		{"id": 6, "title": "F", "description": "f", "key_elements": []},
		{"id": 7, "title": "G", "description": "g", "key_elements": []}
	]}` + "\n```"})

	ideas, err := a.GenerateIdeas(context.Background(), bakery)
	require.NoError(t, err)

	want := []Idea{
		{ID: 1, Title: "A", Description: "a", KeyElements: []string{"x"}},
		{ID: 2, Title: "B", Description: "b", KeyElements: []string{}},
		{ID: 3, Title: "C", Description: "c", KeyElements: []string{"y"}},
		{ID: 4, Title: "D", Description: "d", KeyElements: []string{"z"}},
		{ID: 5, Title: "E", Description: "e", KeyElements: []string{"w"}},
	}
	if diff := cmp.Diff(want, ideas); diff != "" {
		t.Fatalf("ideas mismatch (-want +got):\n%s", diff)
	}

	call := mock.Calls(gateway.PurposeIdeas)[0]
	assert.True(t, call.JSONMode)
	assert.Equal(t, "gpt-4o-mini", call.Model)
	assert.Equal(t, 1500, call.MaxTokens)
	assert.Contains(t, call.Messages[1].Content, "Выпечка хлеба")
}

func TestGenerateIdeasRejectsMalformedBatches(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"three items", `{"ideas": [{"id":1,"title":"a","description":"a","key_elements":[]},{"id":2,"title":"b","description":"b","key_elements":[]},{"id":3,"title":"c","description":"c","key_elements":[]}]}`},
		{"not json", `Вот ваши идеи: ...`},
		{"no container", `{"items": []}`},
		{"container not a list", `{"ideas": "five ideas"}`},
		{"missing field", strings.Replace(fiveIdeas(), `"description":"d3",`, "", 1)},
		{"key elements not a list", strings.Replace(fiveIdeas(), `"key_elements":["k4"]`, `"key_elements":"k4"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, mock := newTestAgent(t)
			mock.Script(gateway.PurposeIdeas, gateway.Reply{Text: tt.reply})

			ideas, err := a.GenerateIdeas(context.Background(), bakery)
			require.Error(t, err)
			assert.Nil(t, ideas)
			assert.Equal(t, failure.KindGeneration, failure.KindOf(err))
			assert.False(t, failure.IsQualityDegraded(err))
		})
	}
}

func fiveIdeas() string {
	var parts []string
	for _, n := range []string{"1", "2", "3", "4", "5"} {
		parts = append(parts, `{"id":`+n+`,"title":"t`+n+`","description":"d`+n+`","key_elements":["k`+n+`"]}`)
	}
	return `{"ideas":[` + strings.Join(parts, ",") + `]}`
}

func TestGeneratePostTextFallsBackOnceOnTruncation(t *testing.T) {
	a, mock := newTestAgent(t)
	mock.Script(gateway.PurposePost,
		gateway.Reply{Err: failure.Degraded("chat", failure.ReasonTruncated, "token limit")},
		gateway.Reply{Text: `{"post": {"title": "Хлеб", "content": "Свежий хлеб каждое утро."}}`},
	)

	post, err := a.GeneratePostText(context.Background(), bakery, Idea{ID: 2, Title: "Утро пекаря"})
	require.NoError(t, err)
	assert.Equal(t, "Свежий хлеб каждое утро.", post.Content)
	assert.Equal(t, []string{}, post.Hashtags)
	assert.Equal(t, "", post.CallToAction)

	calls := mock.Calls(gateway.PurposePost)
	require.Len(t, calls, 2)
	assert.Equal(t, "gpt-5", calls[0].Model)
	assert.Equal(t, "gpt-4o", calls[1].Model)
}

func TestGeneratePostTextSurfacesSecondFailure(t *testing.T) {
	a, mock := newTestAgent(t)
	mock.Script(gateway.PurposePost,
		gateway.Reply{Err: failure.Degraded("chat", failure.ReasonEmpty, "empty")},
		gateway.Reply{Err: failure.Degraded("chat", failure.ReasonRefused, "refused")},
	)

	_, err := a.GeneratePostText(context.Background(), bakery, Idea{ID: 1})
	require.Error(t, err)
	assert.Len(t, mock.Calls(gateway.PurposePost), 2)
}

func TestGeneratePostTextNoFallbackForOtherFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply gateway.Reply
	}{
		{"missing content", gateway.Reply{Text: `{"post": {"title": "x"}}`}},
		{"empty content", gateway.Reply{Text: `{"post": {"title": "x", "content": "  "}}`}},
		{"connectivity", gateway.Reply{Err: failure.New("chat", failure.KindConnectivity, "timeout")}},
		{"throttled", gateway.Reply{Err: failure.Throttled("chat", 0, nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, mock := newTestAgent(t)
			mock.Script(gateway.PurposePost, tt.reply)

			_, err := a.GeneratePostText(context.Background(), bakery, Idea{ID: 1})
			require.Error(t, err)
			assert.Len(t, mock.Calls(gateway.PurposePost), 1)
		})
	}
}

func TestGeneratePostTextKeepsOptionalFields(t *testing.T) {
	a, mock := newTestAgent(t)
	mock.Script(gateway.PurposePost, gateway.Reply{Text: `{"post": {"title": "T", "content": "C", "hashtags": ["#хлеб", "выпечка", ""], "call_to_action": "Заходите!"}}`})

	post, err := a.GeneratePostText(context.Background(), bakery, Idea{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, Post{Title: "T", Content: "C", Hashtags: []string{"хлеб", "выпечка"}, CallToAction: "Заходите!"}, post)
}

func TestGenerateImagePromptTruncatesContent(t *testing.T) {
	a, mock := newTestAgent(t)
	long := strings.Repeat("я", 1500)

	prompt, err := a.GenerateImagePrompt(context.Background(), bakery, Post{Title: "T", Content: long})
	require.NoError(t, err)
	assert.NotEmpty(t, prompt)

	call := mock.Calls(gateway.PurposeImagePrompt)[0]
	user := call.Messages[len(call.Messages)-1].Content
	assert.Contains(t, user, strings.Repeat("я", 1000)+"...")
	assert.NotContains(t, user, strings.Repeat("я", 1001))
	assert.Equal(t, 500, call.MaxTokens)
}

type memStore struct {
	mu    sync.Mutex
	saved [][]byte
	err   error
}

func (m *memStore) Save(_ context.Context, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, data)
	return "mem://1", nil
}

func TestGenerateCompletePostRunsStagesInOrder(t *testing.T) {
	store := &memStore{}
	a, mock := newTestAgent(t, WithImageStore(store))

	got, err := a.GenerateCompletePost(context.Background(), bakery, Idea{ID: 2, Title: "Утро пекаря"})
	require.NoError(t, err)
	a.Wait()

	assert.NotEmpty(t, got.Post.Content)
	assert.NotEmpty(t, got.Image)
	assert.Equal(t, "mock://image/1.png", got.ImageURL)

	var purposes []gateway.Purpose
	for _, c := range mock.Calls("") {
		purposes = append(purposes, c.Purpose)
	}
	assert.Equal(t, []gateway.Purpose{gateway.PurposePost, gateway.PurposeImagePrompt}, purposes)

	images := mock.ImageCalls()
	require.Len(t, images, 1)
	assert.Equal(t, got.ImagePrompt, images[0].Prompt)
	assert.Equal(t, "dall-e-3", images[0].Model)
	assert.Len(t, store.saved, 1)
}

func TestGenerateCompletePostAbortsOnStageFailure(t *testing.T) {
	t.Run("image prompt", func(t *testing.T) {
		a, mock := newTestAgent(t)
		mock.Script(gateway.PurposeImagePrompt, gateway.Reply{Text: `{"image_prompt": {}}`})

		got, err := a.GenerateCompletePost(context.Background(), bakery, Idea{ID: 1})
		require.Error(t, err)
		assert.Equal(t, Complete{}, got)
		assert.Empty(t, mock.ImageCalls())
	})
	t.Run("image", func(t *testing.T) {
		a, mock := newTestAgent(t)
		mock.ImageErr = failure.New("image", failure.KindPolicyRejection, "rejected")

		_, err := a.GenerateCompletePost(context.Background(), bakery, Idea{ID: 1})
		require.Error(t, err)
		assert.Equal(t, failure.KindPolicyRejection, failure.KindOf(err))
	})
	t.Run("download", func(t *testing.T) {
		a, mock := newTestAgent(t)
		mock.DownloadErr = failure.New("download", failure.KindConnectivity, "reset")

		_, err := a.GenerateCompletePost(context.Background(), bakery, Idea{ID: 1})
		assert.Equal(t, failure.KindConnectivity, failure.KindOf(err))
	})
}

func TestArchiveFailureDoesNotFailPipeline(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	a, _ := newTestAgent(t, WithImageStore(store))

	_, data, err := a.GenerateImage(context.Background(), "bread")
	require.NoError(t, err)
	a.Wait()
	assert.NotEmpty(t, data)
}

func TestReformulate(t *testing.T) {
	a, mock := newTestAgent(t)
	mock.Script(gateway.PurposeReformulate,
		gateway.Reply{Text: ` "Выпечка хлеба" `},
		gateway.Reply{Err: errors.New("down")},
		gateway.Reply{Text: `""`},
	)
	ctx := context.Background()

	assert.Equal(t, "Выпечка хлеба", a.Reformulate(ctx, FieldNiche, "я хлеб пеку"))
	assert.Equal(t, "хочу клиентов", a.Reformulate(ctx, FieldGoal, "хочу клиентов"))
	assert.Equal(t, "пост инсте", a.Reformulate(ctx, FieldFormat, "пост инсте"))
	assert.Equal(t, "текст", a.Reformulate(ctx, Field("other"), "текст"))

	calls := mock.Calls(gateway.PurposeReformulate)
	require.Len(t, calls, 3)
	assert.Equal(t, 50, calls[0].MaxTokens)
	assert.InDelta(t, 0.3, *calls[0].Temperature, 1e-9)
}

func TestCheck(t *testing.T) {
	a, mock := newTestAgent(t)
	require.NoError(t, a.Check(context.Background()))

	mock.Script(gateway.PurposeCheck, gateway.Reply{Err: failure.New("chat", failure.KindAuthentication, "bad key")})
	err := a.Check(context.Background())
	assert.Equal(t, failure.KindAuthentication, failure.KindOf(err))
}
