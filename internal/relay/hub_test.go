package relay

import (
	"encoding/json"
	"testing"
	"time"

	"ai-chat-gateway/pkg/chatstream"
	natsbus "ai-chat-gateway/pkg/nats"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error { return nil }

func attachClient(t *testing.T, hub *Hub, conversationID string) *Client {
	t.Helper()
	client := &Client{
		Hub:            hub,
		ConversationID: conversationID,
		Subject:        "user-1",
		Send:           make(chan []byte, 8),
	}
	hub.register <- client
	waitFor(t, func() bool { return hub.WatcherCount(conversationID) > 0 })
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func textDeltaEnvelope(conversationID, delta string) natsbus.Envelope {
	data, _ := json.Marshal(chatstream.TextDeltaData{Delta: delta})
	return natsbus.Envelope{
		ConversationID: conversationID,
		Event: chatstream.Event{
			Type:      chatstream.EventTextDelta,
			Data:      data,
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

func TestRelayDeliversToConversationWatchersOnly(t *testing.T) {
	hub := NewHub(nil, nil, nopLogger{})
	go hub.Run()

	watcher := attachClient(t, hub, "conv-a")
	other := attachClient(t, hub, "conv-b")

	hub.Relay(textDeltaEnvelope("conv-a", "hello"))

	select {
	case raw := <-watcher.Send:
		var ev chatstream.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("delivered frame is not an event: %v", err)
		}
		if ev.Type != chatstream.EventTextDelta {
			t.Errorf("event type = %s, want %s", ev.Type, chatstream.EventTextDelta)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher never received the event")
	}

	select {
	case <-other.Send:
		t.Fatal("event leaked to a different conversation")
	default:
	}
}

func TestRelayFansOutToAllWatchers(t *testing.T) {
	hub := NewHub(nil, nil, nopLogger{})
	go hub.Run()

	first := attachClient(t, hub, "conv-a")
	second := attachClient(t, hub, "conv-a")
	waitFor(t, func() bool { return hub.WatcherCount("conv-a") == 2 })

	hub.Relay(textDeltaEnvelope("conv-a", "x"))

	for _, c := range []*Client{first, second} {
		select {
		case <-c.Send:
		case <-time.After(time.Second):
			t.Fatal("a watcher missed the event")
		}
	}
}

func TestRelayDropsSlowWatcherOnce(t *testing.T) {
	hub := NewHub(nil, nil, nopLogger{})
	go hub.Run()

	slow := &Client{
		Hub:            hub,
		ConversationID: "conv-a",
		Subject:        "user-1",
		Send:           make(chan []byte, 1),
	}
	hub.register <- slow
	waitFor(t, func() bool { return hub.WatcherCount("conv-a") == 1 })
	healthy := attachClient(t, hub, "conv-a")
	waitFor(t, func() bool { return hub.WatcherCount("conv-a") == 2 })

	// Fill the slow watcher's buffer so the next delivery cannot be enqueued.
	slow.Send <- []byte(`{}`)

	hub.Relay(textDeltaEnvelope("conv-a", "x"))
	waitFor(t, func() bool { return hub.WatcherCount("conv-a") == 1 })

	select {
	case <-healthy.Send:
	case <-time.After(time.Second):
		t.Fatal("healthy watcher missed the event")
	}

	// Draining the buffered frame must leave a closed channel behind, not a
	// second close.
	<-slow.Send
	if _, ok := <-slow.Send; ok {
		t.Error("expected slow watcher's Send channel to be closed")
	}

	hub.Relay(textDeltaEnvelope("conv-a", "y"))
	select {
	case <-healthy.Send:
	case <-time.After(time.Second):
		t.Fatal("relay stopped delivering after dropping the slow watcher")
	}
}

func TestUnregisterRemovesWatcher(t *testing.T) {
	hub := NewHub(nil, nil, nopLogger{})
	go hub.Run()

	client := attachClient(t, hub, "conv-a")
	hub.unregister <- client
	waitFor(t, func() bool { return hub.WatcherCount("conv-a") == 0 })

	// Send channel is closed on unregister.
	if _, ok := <-client.Send; ok {
		t.Error("expected Send channel to be closed")
	}
}
