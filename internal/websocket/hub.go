package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message notifies a team's clients that an entity changed.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Ref    string         `json:"ref,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with Type set to "<entity>_<action>".
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// NewRefMessage is NewMessage for entities keyed by a string, such as
// invitations.
func NewRefMessage(entity, action, ref string) Message {
	m := NewMessage(entity, action, 0, nil)
	m.Ref = ref
	return m
}

// Hub tracks connected clients per team. Broadcasts never cross teams.
type Hub struct {
	mu     sync.RWMutex
	teams  map[int64]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		teams:  make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.teams[c.teamID]
	if !ok {
		set = make(map[*Client]struct{})
		h.teams[c.teamID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client and closes its send channel. Calling it
// twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.teams[c.teamID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.teams, c.teamID)
	}
}

// Broadcast sends msg to every client of teamID. Clients with a full
// buffer miss the message.
func (h *Hub) Broadcast(teamID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.teams[teamID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping broadcast for slow client", "team_id", teamID, "type", msg.Type)
		}
	}
}

// Disconnect stops every feed userID holds on teamID and returns how many
// were open.
func (h *Hub) Disconnect(teamID, userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.teams[teamID] {
		if c.userID != userID {
			continue
		}
		if c.stop != nil {
			c.stop(ErrRemoved)
		}
		n++
	}
	return n
}

// ClientCount returns the number of clients connected to teamID.
func (h *Hub) ClientCount(teamID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.teams[teamID])
}
