package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-companion/pkg/convlog"
	"github.com/teslashibe/go-companion/pkg/dialogue"
	"github.com/teslashibe/go-companion/pkg/metrics"
	"github.com/teslashibe/go-companion/pkg/persona"
	"github.com/teslashibe/go-companion/pkg/settings"
	"github.com/teslashibe/go-companion/pkg/store"
)

type fakeDialogue struct {
	state    dialogue.UIState
	restarts atomic.Int32
}

func (f *fakeDialogue) State() dialogue.UIState { return f.state }
func (f *fakeDialogue) Restart()                { f.restarts.Add(1) }
func (f *fakeDialogue) Prompt() string          { return "システムプロンプト:" }

type fixture struct {
	server   *Server
	log      *convlog.Log
	settings *settings.Settings
	metrics  *metrics.Metrics
	dialogue *fakeDialogue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	log, err := convlog.Open(ctx, st)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sets, err := settings.Load(ctx, st, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	f := &fixture{
		log:      log,
		settings: sets,
		metrics:  metrics.New(""),
		dialogue: &fakeDialogue{state: dialogue.UIState{State: dialogue.StateListening, Listening: true}},
	}
	f.server = NewServer(Config{}, log, sets, f.metrics)
	f.server.SetDialogue(f.dialogue)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.App().Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (f *fixture) addTurns(t *testing.T, texts ...string) []convlog.Turn {
	t.Helper()
	var turns []convlog.Turn
	base := time.Unix(1700000000, 0)
	for i, text := range texts {
		turn := convlog.UserTurn(text)
		turn.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := f.log.Append(context.Background(), turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
		turns = append(turns, turn)
	}
	return turns
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/api/status", "")
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		State struct {
			State     string `json:"state"`
			Listening bool   `json:"listening"`
		} `json:"state"`
		Clients map[string]int `json:"clients"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State.State != "listening" || !got.State.Listening {
		t.Errorf("state = %+v", got.State)
	}
	if got.Clients["status"] != 0 || got.Clients["conversation"] != 0 {
		t.Errorf("clients = %v", got.Clients)
	}
}

func TestConversationOrder(t *testing.T) {
	f := newFixture(t)
	f.addTurns(t, "one", "two", "three")

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"one", "two", "three"}},
		{"?order=asc", []string{"one", "two", "three"}},
		{"?order=desc", []string{"three", "two", "one"}},
	}

	for _, tt := range tests {
		_, body := f.do(t, "GET", "/api/conversation"+tt.query, "")

		var got []struct {
			Message string `json:"message"`
			IsUser  bool   `json:"isUser"`
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%q: got %d turns", tt.query, len(got))
		}
		for i := range got {
			if got[i].Message != tt.want[i] || !got[i].IsUser {
				t.Errorf("%q[%d] = %+v, want %s", tt.query, i, got[i], tt.want[i])
			}
		}
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	turns := f.addTurns(t, "one", "two", "three")

	body := `{"ids":["` + turns[0].ID + `","` + turns[2].ID + `","missing"]}`
	resp, data := f.do(t, "DELETE", "/api/conversation", body)
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, body %s", resp.StatusCode, data)
	}
	if !strings.Contains(string(data), `"deleted":2`) {
		t.Errorf("body = %s", data)
	}
	if f.log.Len() != 1 || f.log.All()[0].Text != "two" {
		t.Errorf("remaining = %+v", f.log.All())
	}

	resp, _ = f.do(t, "DELETE", "/api/conversation", `{"ids":[]}`)
	if resp.StatusCode != 400 {
		t.Errorf("empty ids: Status = %d, want 400", resp.StatusCode)
	}

	resp, _ = f.do(t, "DELETE", "/api/conversation?all=true", "")
	if resp.StatusCode != 200 {
		t.Fatalf("clear: Status = %d", resp.StatusCode)
	}
	if f.log.Len() != 0 {
		t.Errorf("Len = %d after clear", f.log.Len())
	}
}

func TestSettingsRoundTripRestarts(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/api/settings/agent", "")
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
	var agent persona.AgentProfile
	if err := json.Unmarshal(body, &agent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if agent.Name != "あすか" {
		t.Errorf("Name = %q", agent.Name)
	}

	resp, _ = f.do(t, "PUT", "/api/settings/agent", `{"name":"みどり","response_length":5}`)
	if resp.StatusCode != 200 {
		t.Fatalf("PUT agent Status = %d", resp.StatusCode)
	}
	got := f.settings.Agent()
	if got.Name != "みどり" || got.ResponseLength != 5 {
		t.Errorf("agent = %+v", got)
	}
	// Fields absent from the body keep their values.
	if !got.Empathy {
		t.Error("Empathy should be kept")
	}

	resp, _ = f.do(t, "PUT", "/api/settings/user", `{"name":"花子","hobbies":"園芸"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("PUT user Status = %d", resp.StatusCode)
	}
	if f.settings.User().Hobbies != "園芸" {
		t.Errorf("user = %+v", f.settings.User())
	}

	resp, _ = f.do(t, "PUT", "/api/settings/app", `{"conversation_log_count":7}`)
	if resp.StatusCode != 200 {
		t.Fatalf("PUT app Status = %d", resp.StatusCode)
	}
	if f.settings.App().ConversationLogCount != 7 {
		t.Errorf("app = %+v", f.settings.App())
	}

	if n := f.dialogue.restarts.Load(); n != 3 {
		t.Errorf("restarts = %d, want 3", n)
	}
}

func TestSettingsValidation(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "PUT", "/api/settings/agent", `{"response_length":9}`)
	if resp.StatusCode != 400 {
		t.Errorf("agent Status = %d, want 400", resp.StatusCode)
	}
	resp, _ = f.do(t, "PUT", "/api/settings/app", `{"conversation_log_count":-1}`)
	if resp.StatusCode != 400 {
		t.Errorf("app Status = %d, want 400", resp.StatusCode)
	}
	resp, _ = f.do(t, "PUT", "/api/settings/user", `not json`)
	if resp.StatusCode != 400 {
		t.Errorf("user Status = %d, want 400", resp.StatusCode)
	}
	if n := f.dialogue.restarts.Load(); n != 0 {
		t.Errorf("restarts = %d, want 0", n)
	}
}

func TestPromptAndLatency(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, "GET", "/api/prompt", "")
	if !strings.Contains(string(body), "システムプロンプト:") {
		t.Errorf("prompt body = %s", body)
	}

	_, body = f.do(t, "GET", "/api/latency", "")
	var lat LatencyResponse
	if err := json.Unmarshal(body, &lat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lat.Turns != 0 || lat.Last != nil {
		t.Errorf("latency = %+v", lat)
	}

	lc := f.metrics.Latency()
	lc.MarkTranscript()
	lc.MarkResponse()
	lc.ObserveTTS(100 * time.Millisecond)

	_, body = f.do(t, "GET", "/api/latency", "")
	if err := json.Unmarshal(body, &lat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lat.Turns != 1 || lat.Last == nil || lat.Last.TTS != 100*time.Millisecond {
		t.Errorf("latency = %+v", lat)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.metrics.RecordTurn("agent")

	resp, body := f.do(t, "GET", "/metrics", "")
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `companion_turns_total{speaker="agent"} 1`) {
		t.Errorf("metrics body missing turns counter")
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, "GET", "/ws/status", "")
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func serve(t *testing.T, f *fixture) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return "ws://" + ln.Addr().String()
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev.Type, ev.Data
}

func waitClients(t *testing.T, f *fixture, status, conversation int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f.server.statusHub.ClientCount() == status && f.server.conversationHub.ClientCount() == conversation {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("clients = %d/%d, want %d/%d",
		f.server.statusHub.ClientCount(), f.server.conversationHub.ClientCount(), status, conversation)
}

func TestStatusWebSocket(t *testing.T) {
	f := newFixture(t)
	base := serve(t, f)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/status", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	typ, data := readEvent(t, conn)
	if typ != EventState || !strings.Contains(string(data), `"listening"`) {
		t.Errorf("initial event = %s %s", typ, data)
	}

	waitClients(t, f, 1, 0)
	f.server.StateChanged(dialogue.UIState{State: dialogue.StateSpeaking})

	typ, data = readEvent(t, conn)
	if typ != EventState || !strings.Contains(string(data), `"speaking"`) {
		t.Errorf("event = %s %s", typ, data)
	}
}

func TestConversationWebSocket(t *testing.T) {
	f := newFixture(t)
	base := serve(t, f)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/conversation", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitClients(t, f, 0, 1)

	f.server.PartialTranscript("こんに")
	f.server.TurnAdded(convlog.AgentTurn("こんにちは"))

	typ, data := readEvent(t, conn)
	if typ != EventPartial || string(data) != `"こんに"` {
		t.Errorf("partial = %s %s", typ, data)
	}
	typ, data = readEvent(t, conn)
	if typ != EventTurn || !strings.Contains(string(data), `"message":"こんにちは"`) {
		t.Errorf("turn = %s %s", typ, data)
	}

	conn.Close()
	waitClients(t, f, 0, 0)
}
