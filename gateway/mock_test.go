package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMockScriptThenCanned(t *testing.T) {
	m := NewMock()
	boom := errors.New("boom")
	m.Script(PurposeIdeas, Reply{Text: "first"}, Reply{Err: boom})

	ctx := context.Background()
	out, err := m.ChatComplete(ctx, ChatRequest{Purpose: PurposeIdeas})
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	_, err = m.ChatComplete(ctx, ChatRequest{Purpose: PurposeIdeas})
	assert.ErrorIs(t, err, boom)

	out, err = m.ChatComplete(ctx, ChatRequest{Purpose: PurposeIdeas})
	require.NoError(t, err)
	assert.Len(t, gjson.Get(out, "ideas").Array(), 5)
	assert.Len(t, m.Calls(PurposeIdeas), 3)
	assert.Empty(t, m.Calls(PurposePost))
}

func TestMockReformulateEchoesQuotedInput(t *testing.T) {
	m := NewMock()
	out, err := m.ChatComplete(context.Background(), ChatRequest{
		Purpose:  PurposeReformulate,
		Messages: []Message{{Role: RoleUser, Content: "Пользователь написал: \"я хлеб пеку\"\n"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "я хлеб пеку", out)
}
