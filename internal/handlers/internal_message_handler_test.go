package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalMessageHandler_SendAndList(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, 1, 4, "staff")

	w := env.do(t, http.MethodPost, "/api/v1/internal/messages", tok, map[string]string{"content": "  shift swap?  "})
	require.Equal(t, http.StatusCreated, w.Code)
	var msg struct {
		ID         uint   `json:"id"`
		Content    string `json:"content"`
		SenderID   uint   `json:"sender_id"`
		SenderName string `json:"sender_name"`
	}
	decode(t, w, &msg)
	assert.Equal(t, "shift swap?", msg.Content)
	assert.Equal(t, uint(4), msg.SenderID)
	assert.Equal(t, "user-4", msg.SenderName)

	w = env.do(t, http.MethodGet, "/api/v1/internal/messages", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	decode(t, w, &list)
	require.Len(t, list.Messages, 1)

	w = env.do(t, http.MethodGet, "/api/v1/internal/messages", env.token(t, 2, 4, "staff"), nil)
	decode(t, w, &list)
	assert.Empty(t, list.Messages)
}

func TestInternalMessageHandler_Errors(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, 1, 4, "staff")

	w := env.do(t, http.MethodPost, "/api/v1/internal/messages", tok, map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the test env caps messages at 20 characters
	w = env.do(t, http.MethodPost, "/api/v1/internal/messages", tok, map[string]string{"content": strings.Repeat("a", 21)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 0; i < 5; i++ {
		w = env.do(t, http.MethodPost, "/api/v1/internal/messages", tok, map[string]string{"content": "hi"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/internal/messages", tok, map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/internal/messages", "", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
