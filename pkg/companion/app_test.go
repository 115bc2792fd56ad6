package companion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-companion/internal/config"
	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/store"
)

func testConfig(t *testing.T, llmURL string) *config.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ELEVENLABS_API_KEY", "")

	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Store.Backend = store.BackendMemory
	cfg.Inference.BaseURL = llmURL
	cfg.Inference.APIKey = "k"
	cfg.Capture.Mode = config.CaptureText
	cfg.TTS.Providers = []string{config.TTSPiper}
	cfg.TTS.Piper.Endpoint = "127.0.0.1:1"
	cfg.TTS.Timeout = time.Second
	cfg.Audio.Input.Backend = audioio.BackendMock
	cfg.Audio.Output.Backend = audioio.BackendMock
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Speech.SettleDelay = 10 * time.Millisecond
	return cfg
}

func TestNewValidates(t *testing.T) {
	cfg := testConfig(t, "http://localhost")
	cfg.Language = "xx"

	_, err := New(cfg)
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "language", cerr.Field)
}

func TestRunBeforeInit(t *testing.T) {
	app, err := New(testConfig(t, "http://localhost"))
	require.NoError(t, err)
	assert.Error(t, app.Run(context.Background()))
}

func TestInitFailureReleasesResources(t *testing.T) {
	cfg := testConfig(t, "http://localhost")
	app, err := New(cfg)
	require.NoError(t, err)

	// Passes New, then fails building the recognizer after the store and
	// synthesis are up.
	cfg.Capture.Mode = config.CaptureAudio
	cfg.STT.APIKey = ""

	err = app.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture")

	assert.Nil(t, app.store)
	assert.Nil(t, app.synth)
	assert.Nil(t, app.source)
	assert.Nil(t, app.Dialogue())

	app.Shutdown()
}

func TestTextModeConversation(t *testing.T) {
	var requests atomic.Int32
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		reply := "いらっしゃい"
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Content == "こんにちは" {
			reply = "こんにちは、元気ですか"
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + reply + `"}}]}`))
	}))
	defer llm.Close()

	app, err := New(testConfig(t, llm.URL), WithInput(strings.NewReader("こんにちは\n")))
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.Log().Len() >= 3 }, 5*time.Second, 10*time.Millisecond)

	turns := app.Log().All()
	require.Len(t, turns, 3)
	assert.Equal(t, "いらっしゃい", turns[0].Text)
	assert.False(t, turns[0].IsUser())
	assert.Equal(t, "こんにちは", turns[1].Text)
	assert.True(t, turns[1].IsUser())
	assert.Equal(t, "こんにちは、元気ですか", turns[2].Text)
	assert.Equal(t, int32(2), requests.Load())

	assert.Contains(t, app.Dialogue().Prompt(), "こんにちは")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	app.Shutdown()
}
