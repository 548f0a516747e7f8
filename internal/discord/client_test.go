package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeGateway принимает websocket-подключения и отдаёт их тесту.
type fakeGateway struct {
	t      *testing.T
	srv    *httptest.Server
	conns  chan *websocket.Conn
	wsBase string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{t: t, conns: make(chan *websocket.Conn, 4)}
	up := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		g.conns <- c
	}))
	t.Cleanup(g.srv.Close)
	g.wsBase = "ws" + strings.TrimPrefix(g.srv.URL, "http")
	return g
}

func (g *fakeGateway) accept() *websocket.Conn {
	g.t.Helper()
	select {
	case c := <-g.conns:
		g.t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(10 * time.Second):
		g.t.Fatal("client did not connect")
		return nil
	}
}

func sendOp(t *testing.T, c *websocket.Conn, op int, seq int64, event string, d any) {
	t.Helper()
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	p := payload{Op: op, D: raw, T: event}
	if seq > 0 {
		p.S = &seq
	}
	if err := c.WriteJSON(p); err != nil {
		t.Fatalf("write op %d: %v", op, err)
	}
}

func readOp(t *testing.T, c *websocket.Conn) payload {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var p payload
	if err := c.ReadJSON(&p); err != nil {
		t.Fatalf("read: %v", err)
	}
	return p
}

func TestSessionIdentifyDispatchResume(t *testing.T) {
	g := newFakeGateway(t)
	s := NewSession(SessionConfig{Token: "tok", URL: g.wsBase + "/?v=10&encoding=json"})
	s.backoffMin = 10 * time.Millisecond

	members := make(chan MemberEvent, 1)
	messages := make(chan MessageCreate, 1)
	s.OnMemberAdd = func(ev MemberEvent) { members <- ev }
	s.OnMessage = func(m MessageCreate) { messages <- m }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	c := g.accept()
	sendOp(t, c, opHello, 0, "", hello{HeartbeatInterval: 45000})
	p := readOp(t, c)
	if p.Op != opIdentify {
		t.Fatalf("want identify, got op %d", p.Op)
	}
	var id identify
	if err := json.Unmarshal(p.D, &id); err != nil {
		t.Fatal(err)
	}
	if id.Token != "tok" || id.Intents != DefaultIntents {
		t.Fatalf("identify: %+v", id)
	}

	sendOp(t, c, opDispatch, 1, "READY", map[string]any{
		"session_id":         "sess-1",
		"resume_gateway_url": g.wsBase,
		"user":               map[string]any{"id": "1", "username": "recruitbot"},
	})
	sendOp(t, c, opDispatch, 2, "GUILD_MEMBER_ADD", map[string]any{
		"guild_id": "9",
		"user":     map[string]any{"id": "42", "username": "newbie"},
		"roles":    []string{},
	})
	sendOp(t, c, opDispatch, 3, "MESSAGE_CREATE", map[string]any{
		"id": "100", "channel_id": "7", "guild_id": "9", "content": "!help",
		"author": map[string]any{"id": "42", "username": "newbie"},
	})

	select {
	case ev := <-members:
		if ev.GuildID != 9 || ev.User == nil || ev.User.ID != 42 {
			t.Fatalf("member event: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("member event not delivered")
	}
	select {
	case m := <-messages:
		if m.Content != "!help" || !m.InGuild() || m.Author.ID != 42 {
			t.Fatalf("message: %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	// сервер просит переподключиться: ожидаем Resume с последним seq
	sendOp(t, c, opReconnect, 0, "", nil)
	c2 := g.accept()
	sendOp(t, c2, opHello, 0, "", hello{HeartbeatInterval: 45000})
	p = readOp(t, c2)
	if p.Op != opResume {
		t.Fatalf("want resume, got op %d", p.Op)
	}
	var r resume
	if err := json.Unmarshal(p.D, &r); err != nil {
		t.Fatal(err)
	}
	if r.SessionID != "sess-1" || r.Seq != 3 || r.Token != "tok" {
		t.Fatalf("resume: %+v", r)
	}

	// сервер шлёт heartbeat-запрос — клиент отвечает сразу
	sendOp(t, c2, opHeartbeat, 0, "", nil)
	if p = readOp(t, c2); p.Op != opHeartbeat || string(p.D) != "3" {
		t.Fatalf("heartbeat reply: op %d d %s", p.Op, p.D)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestSessionFatalClose(t *testing.T) {
	g := newFakeGateway(t)
	s := NewSession(SessionConfig{Token: "bad", URL: g.wsBase})
	s.backoffMin = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	c := g.accept()
	sendOp(t, c, opHello, 0, "", hello{HeartbeatInterval: 45000})
	readOp(t, c)
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(4004, "Authentication failed."), time.Now().Add(time.Second))

	select {
	case err := <-done:
		if !errors.Is(err, ErrFatalClose) {
			t.Fatalf("want ErrFatalClose, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on fatal close")
	}
}

func TestSessionInvalidSessionReidentifies(t *testing.T) {
	g := newFakeGateway(t)
	s := NewSession(SessionConfig{Token: "tok", URL: g.wsBase})
	s.backoffMin = 10 * time.Millisecond
	s.sessionID, s.resumeURL = "old", g.wsBase
	s.seq.Store(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	c := g.accept()
	sendOp(t, c, opHello, 0, "", hello{HeartbeatInterval: 45000})
	if p := readOp(t, c); p.Op != opResume {
		t.Fatalf("want resume, got op %d", p.Op)
	}
	sendOp(t, c, opInvalidSession, 0, "", false)

	c2 := g.accept()
	sendOp(t, c2, opHello, 0, "", hello{HeartbeatInterval: 45000})
	if p := readOp(t, c2); p.Op != opIdentify {
		t.Fatalf("want identify after invalid session, got op %d", p.Op)
	}
}
