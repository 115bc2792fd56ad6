package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-companion/pkg/inference"
	"github.com/teslashibe/go-companion/pkg/locale"
)

func newServerClient(t *testing.T, status int, body string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	provider, err := inference.NewClient(inference.WithBaseURL(server.URL), inference.WithAPIKey("k"))
	require.NoError(t, err)
	return New(provider)
}

func TestRespondStatusMapping(t *testing.T) {
	cat := locale.DefaultCatalog()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"ok", 200, `{"choices":[{"message":{"role":"assistant","content":"やあ"}}]}`, "やあ"},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, cat.RateLimited},
		{"unauthorized", 401, `{}`, "APIキーが無効です"},
		{"forbidden", 403, ``, cat.Forbidden},
		{"not found", 404, ``, cat.NotFound},
		{"server error", 500, ``, cat.ServerError},
		{"bad gateway", 502, ``, "エラーが発生しました: 502"},
		{"teapot", 418, ``, "エラーが発生しました: 418"},
		{"empty body", 200, ``, "応答が空でした"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServerClient(t, tt.status, tt.body)
			reply, err := c.Respond(context.Background(), "system", "user")
			assert.Equal(t, tt.want, reply)
			if tt.name == "ok" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRespondParseFailures(t *testing.T) {
	c := newServerClient(t, 200, `{"choices": "nope"}`)
	reply, err := c.Respond(context.Background(), "s", "u")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(reply, "応答の解析に失敗しました: "), reply)

	c = newServerClient(t, 200, `{"choices": []}`)
	reply, err = c.Respond(context.Background(), "s", "u")
	require.ErrorIs(t, err, inference.ErrNoChoices)
	assert.True(t, strings.HasPrefix(reply, "応答の解析に失敗しました: "), reply)
}

func TestRespondTransportFailure(t *testing.T) {
	mock := inference.NewFailingMock(inference.WrapError("client", errors.New("connection refused")))
	c := New(mock)

	reply := c.GetResponse(context.Background(), "s", "u")
	assert.Equal(t, "エラーが発生しました: connection refused", reply)
}

func TestRespondFlattensNewlines(t *testing.T) {
	mock := inference.NewMock("ok")
	c := New(mock)

	reply, err := c.Respond(context.Background(), "line1\nline2\r\nline3", "a\nb")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	last := mock.LastRequest()
	require.NotNil(t, last)
	require.Len(t, last.Messages, 2)
	assert.Equal(t, inference.RoleSystem, last.Messages[0].Role)
	assert.Equal(t, "line1 line2 line3", last.Messages[0].Content)
	assert.Equal(t, "a b", last.Messages[1].Content)
	assert.Len(t, mock.Requests(), 1)
}

func TestRespondEnglishCatalog(t *testing.T) {
	cat := locale.For(locale.English)
	c := New(inference.NewFailingMock(&inference.APIError{StatusCode: 429}), WithCatalog(cat))

	reply, err := c.Respond(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, cat.RateLimited, reply)
}
