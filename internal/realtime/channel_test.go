package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectAssignsSessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{
			"type":       "connected",
			"session_id": "sess-1",
			"welcome":    "خوش اومدی",
		})
		// Keep reading so the client's end event has somewhere to go.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(wsURL(srv), zap.NewNop())
	defer ch.Close()

	sessionID, welcome, err := ch.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if sessionID != "sess-1" {
		t.Errorf("Expected session id sess-1, got %s", sessionID)
	}
	if welcome != "خوش اومدی" {
		t.Errorf("Expected welcome, got %q", welcome)
	}

	// Idempotent: a second connect returns the same id without dialing.
	again, _, err := ch.Connect(context.Background())
	if err != nil || again != sessionID {
		t.Errorf("Expected idempotent connect, got %s, %v", again, err)
	}
}

func TestConnectTimesOutWithoutConnectedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never send connected; hold the connection open.
		time.Sleep(600 * time.Millisecond)
	}))
	defer srv.Close()

	ch := NewChannel(wsURL(srv), zap.NewNop())
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, _, err := ch.Connect(ctx)
	if !domain.IsFault(err, domain.FaultTimeout) {
		t.Errorf("Expected timeout fault, got %v", err)
	}
}

func TestConnectFailsAgainstDeadEndpoint(t *testing.T) {
	ch := NewChannel("ws://127.0.0.1:1/ws/voice-chat", zap.NewNop())
	defer ch.Close()

	_, _, err := ch.Connect(context.Background())
	if err == nil {
		t.Fatal("Expected connect to fail")
	}
	if !domain.IsFault(err, domain.FaultConnection) && !domain.IsFault(err, domain.FaultTimeout) {
		t.Errorf("Expected connection or timeout fault, got %v", err)
	}
}

func TestSendAndReceiveEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"type": "connected", "session_id": "s"})

		// Echo every audio event back as a transcript plus a reply.
		for {
			var msg struct {
				Type string `json:"type"`
				Data string `json:"data"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "audio" {
				conn.WriteJSON(map[string]any{"type": "user_text", "data": "سلام"})
				conn.WriteJSON(map[string]any{"type": "text", "data": "علیک سلام", "emotion": "happy"})
				conn.WriteJSON(map[string]any{"type": "turn_complete"})
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(wsURL(srv), zap.NewNop())
	defer ch.Close()

	if _, _, err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := ch.Send(domain.NewAudioEvent("QUJD", "audio/wav", "")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				t.Fatalf("Event stream closed early, got %v", got)
			}
			switch ev.(type) {
			case domain.UserTextEvent:
				got = append(got, "user_text")
			case domain.ReplyEvent:
				got = append(got, "reply")
			case domain.TurnCompleteEvent:
				got = append(got, "turn_complete")
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for events, got %v", got)
		}
	}

	want := []string{"user_text", "reply", "turn_complete"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCloseSendsEndEvent(t *testing.T) {
	received := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"type": "connected", "session_id": "s"})
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			json.Unmarshal(frame, &msg)
			received <- msg.Type
		}
	}))
	defer srv.Close()

	ch := NewChannel(wsURL(srv), zap.NewNop())
	if _, _, err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ch.Close()
	ch.Close() // safe to call twice

	ends := 0
	for typ := range received {
		if typ == "end" {
			ends++
		}
	}
	if ends != 1 {
		t.Errorf("Expected exactly one end event, got %d", ends)
	}

	select {
	case _, ok := <-ch.Events():
		if ok {
			t.Error("Expected no events after close")
		}
	case <-time.After(2 * time.Second):
		t.Error("Expected event stream to close")
	}
}

func TestSendBeforeConnectFails(t *testing.T) {
	ch := NewChannel("ws://127.0.0.1:1/ws", zap.NewNop())
	if err := ch.Send(domain.NewEndEvent()); !domain.IsFault(err, domain.FaultConnection) {
		t.Errorf("Expected connection fault, got %v", err)
	}
}
