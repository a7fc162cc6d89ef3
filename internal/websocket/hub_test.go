package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, teamID int64) *Client {
	return &Client{
		hub:    hub,
		teamID: teamID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)
	c3 := mockClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if got := hub.ClientCount(1); got != 2 {
		t.Fatalf("team 1 clients = %d, want 2", got)
	}
	if got := hub.ClientCount(2); got != 1 {
		t.Fatalf("team 2 clients = %d, want 1", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(1); got != 1 {
		t.Fatalf("team 1 clients after unregister = %d, want 1", got)
	}

	hub.Unregister(c2)
	hub.Unregister(c2)
	hub.Unregister(c3)
	if got := hub.ClientCount(1) + hub.ClientCount(2); got != 0 {
		t.Fatalf("clients = %d, want 0", got)
	}
}

func TestBroadcastStaysInTeam(t *testing.T) {
	hub := NewHub(slog.Default())

	mine := mockClient(hub, 1)
	theirs := mockClient(hub, 2)
	hub.Register(mine)
	hub.Register(theirs)
	defer hub.Unregister(mine)
	defer hub.Unregister(theirs)

	hub.Broadcast(1, NewMessage("care_task", "updated", 42, map[string]any{"done": true}))

	select {
	case data := <-mine.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "care_task_updated" {
			t.Errorf("type = %s, want care_task_updated", got.Type)
		}
		if got.ID != 42 {
			t.Errorf("id = %d, want 42", got.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}

	select {
	case <-theirs.send:
		t.Error("client of another team received the broadcast")
	default:
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1)
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(1, NewMessage("test", "fill", int64(i), nil))
	}
	// Dropped, not blocking.
	hub.Broadcast(1, NewMessage("test", "dropped", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("queued = %d, want %d", got, sendBufferSize)
	}
}

func TestDisconnectStopsOnlyThatMember(t *testing.T) {
	hub := NewHub(slog.Default())

	var causes []error
	client := func(team, user int64) *Client {
		c := mockClient(hub, team)
		c.userID = user
		ctx, stop := context.WithCancelCause(context.Background())
		c.stop = func(err error) {
			stop(err)
			causes = append(causes, context.Cause(ctx))
		}
		hub.Register(c)
		return c
	}
	client(1, 7)
	client(1, 7)
	client(1, 8)
	client(2, 7)

	if n := hub.Disconnect(1, 7); n != 2 {
		t.Errorf("disconnected %d, want 2", n)
	}
	if len(causes) != 2 {
		t.Fatalf("stopped %d clients, want 2", len(causes))
	}
	for _, err := range causes {
		if !errors.Is(err, ErrRemoved) {
			t.Errorf("cause = %v, want ErrRemoved", err)
		}
	}
	if n := hub.Disconnect(3, 7); n != 0 {
		t.Errorf("unknown team disconnected %d", n)
	}
}

func TestNewRefMessage(t *testing.T) {
	msg := NewRefMessage("invitation", "deleted", "3f1c")
	if msg.Type != "invitation_deleted" || msg.Ref != "3f1c" || msg.ID != 0 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(team int64) {
			defer wg.Done()
			c := mockClient(hub, team)
			hub.Register(c)
			hub.Broadcast(team, NewMessage("test", "concurrent", 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i % 3))
	}

	wg.Wait()

	for team := int64(0); team < 3; team++ {
		if got := hub.ClientCount(team); got != 0 {
			t.Errorf("team %d clients = %d, want 0", team, got)
		}
	}
}
