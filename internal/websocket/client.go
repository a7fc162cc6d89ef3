package websocket

import (
	"context"
	"errors"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// ErrRemoved ends the feed of a user who left the team.
var ErrRemoved = errors.New("removed from team")

// Client is one member's connection to a team's change feed. The feed is
// server to client only.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	teamID int64
	userID int64
	send   chan []byte
	stop   context.CancelCauseFunc
}

func NewClient(hub *Hub, conn *ws.Conn, teamID, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		teamID: teamID,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Run serves the connection until the peer leaves, ctx ends, or the hub
// stops the client.
func (c *Client) Run(ctx context.Context) {
	ctx, c.stop = context.WithCancelCause(ctx)
	defer c.stop(nil)

	c.hub.Register(c)
	defer c.hub.Unregister(c)

	go c.pump(ctx)
	c.drain(ctx)

	if errors.Is(context.Cause(ctx), ErrRemoved) {
		c.conn.Close(ws.StatusPolicyViolation, ErrRemoved.Error())
		return
	}
	c.conn.CloseNow()
}

// drain reads and discards until the connection fails.
func (c *Client) drain(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) pump(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			err = c.write(ctx, msg)
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Ping(pctx)
			cancel()
		}
		if err != nil {
			c.stop(err)
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
