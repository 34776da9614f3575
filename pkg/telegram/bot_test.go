package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyPostsToShopChat(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bot := NewBot("secret", "-100200", srv.URL)
	require.NoError(t, bot.Notify(context.Background(), "new booking"))

	assert.Equal(t, "/botsecret/sendMessage", gotPath)
	assert.Equal(t, "-100200", gotChat)
	assert.Equal(t, "new booking", gotText)
}

func TestSendMessageReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewBot("t", "1", srv.URL).SendMessage(context.Background(), "1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
