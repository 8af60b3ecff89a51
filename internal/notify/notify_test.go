package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/config"
)

func TestPushover_Notify(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"token":   r.PostForm.Get("token"),
			"user":    r.PostForm.Get("user"),
			"title":   r.PostForm.Get("title"),
			"message": r.PostForm.Get("message"),
		}
		_, _ = w.Write([]byte(`{"status":1,"request":"abc"}`))
	}))
	defer server.Close()

	p := NewPushover(server.URL, "app-token", "user-key", nil)
	require.NoError(t, p.Notify(context.Background(), "Video summary: Chips", "- one\n- two"))

	assert.Equal(t, map[string]string{
		"token":   "app-token",
		"user":    "user-key",
		"title":   "Video summary: Chips",
		"message": "- one\n- two",
	}, form)
}

func TestPushover_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":0,"errors":["user identifier is invalid"]}`))
	}))
	defer server.Close()

	err := NewPushover(server.URL, "t", "u", nil).Notify(context.Background(), "title", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user identifier is invalid")
}

func TestPushover_StatusZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":0,"errors":["token is invalid"]}`))
	}))
	defer server.Close()

	err := NewPushover(server.URL, "t", "u", nil).Notify(context.Background(), "title", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is invalid")
}

func TestNew(t *testing.T) {
	n, err := New(config.NotifyConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.IsType(t, Noop{}, n)
	assert.NoError(t, n.Notify(context.Background(), "t", "m"))

	_, err = New(config.NotifyConfig{Enabled: true, Token: "t"}, nil)
	assert.Error(t, err)

	n, err = New(config.NotifyConfig{Enabled: true, Token: "t", UserKey: "u"}, nil)
	require.NoError(t, err)
	p, ok := n.(*Pushover)
	require.True(t, ok)
	assert.Equal(t, DefaultPushoverURL, p.apiURL)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	long := strings.Repeat("é", 300)
	out := truncate(long, maxTitleLength)
	assert.Equal(t, maxTitleLength, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))
}
