// Package matrix is the chat transport: a mautrix client that delivers
// inbound text messages to a handler and sends replies back.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const (
	backoffMin = 2 * time.Second
	backoffMax = 5 * time.Minute
	// typingTimeout bounds the typing indicator if it is never cleared.
	typingTimeout = 30 * time.Second
)

// Config holds the Matrix connection settings.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms restricts which rooms are served and joined. Empty serves every
	// joined room.
	Rooms []string
	// DB persists sync tokens. Without it every start replays the recent
	// timeline, and events older than the start are ignored.
	DB     *sql.DB
	Logger *slog.Logger
}

// Message is one inbound text message.
type Message struct {
	RoomID    string
	EventID   string
	Sender    string
	Body      string
	Timestamp time.Time
}

// Handler processes one inbound message.
type Handler func(ctx context.Context, msg Message)

// Client wraps the mautrix client.
type Client struct {
	mx     *mautrix.Client
	cfg    Config
	rooms  map[string]bool
	logger *slog.Logger

	handler      Handler
	ignoreBefore time.Time

	namesMu sync.RWMutex
	names   map[string]string

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Client. It does not contact the homeserver.
func New(cfg Config) (*Client, error) {
	if cfg.Homeserver == "" || cfg.UserID == "" || cfg.AccessToken == "" {
		return nil, errors.New("matrix: homeserver, user id and access token are required")
	}
	mx, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: new client: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DB != nil {
		mx.Store = NewSyncStore(cfg.DB)
	} else {
		logger.Warn("matrix: no database for sync tokens; the timeline replays on restart")
	}

	rooms := make(map[string]bool, len(cfg.Rooms))
	for _, r := range cfg.Rooms {
		rooms[r] = true
	}
	return &Client{
		mx:     mx,
		cfg:    cfg,
		rooms:  rooms,
		logger: logger,
		names:  make(map[string]string),
	}, nil
}

// Start joins the configured rooms and syncs in the background until Stop.
func (c *Client) Start(ctx context.Context, h Handler) error {
	c.handler = h

	token, err := c.mx.Store.LoadNextBatch(ctx, c.mx.UserID)
	if err != nil {
		return fmt.Errorf("matrix: load sync token: %w", err)
	}
	if token == "" {
		c.ignoreBefore = time.Now()
	}

	syncer, ok := c.mx.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateRoomName, c.handleRoomName)

	for _, r := range c.cfg.Rooms {
		if err := c.join(ctx, id.RoomID(r)); err != nil {
			return fmt.Errorf("matrix: join %s: %w", r, err)
		}
	}

	syncCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.syncLoop(syncCtx)
	c.logger.Info("matrix: syncing", "user", c.cfg.UserID, "rooms", len(c.cfg.Rooms))
	return nil
}

// syncLoop restarts the sync after failures with exponential backoff.
func (c *Client) syncLoop(ctx context.Context) {
	defer close(c.done)
	backoff := backoffMin
	for {
		err := c.mx.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}
		c.logger.Error("matrix: sync stopped; reconnecting", "err", err, "backoff", backoff)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop ends the sync loop and waits for it to exit.
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.mx.StopSync()
	<-c.done
}

// UserID is the bot's own user ID.
func (c *Client) UserID() string { return c.cfg.UserID }

// Serves reports whether messages from roomID are handled.
func (c *Client) Serves(roomID string) bool {
	return len(c.rooms) == 0 || c.rooms[roomID]
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	msg, ok := c.accept(evt)
	if !ok || c.handler == nil {
		return
	}
	c.handler(ctx, msg)
}

// accept filters an event down to a Message: own messages, other rooms,
// non-text messages and pre-start replays are dropped.
func (c *Client) accept(evt *event.Event) (Message, bool) {
	if evt.Sender == id.UserID(c.cfg.UserID) {
		return Message{}, false
	}
	if !c.Serves(evt.RoomID.String()) {
		return Message{}, false
	}
	ts := time.UnixMilli(evt.Timestamp)
	if !c.ignoreBefore.IsZero() && ts.Before(c.ignoreBefore) {
		return Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return Message{}, false
	}
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return Message{}, false
	}
	return Message{
		RoomID:    evt.RoomID.String(),
		EventID:   evt.ID.String(),
		Sender:    evt.Sender.String(),
		Body:      content.Body,
		Timestamp: ts,
	}, true
}

func (c *Client) handleRoomName(_ context.Context, evt *event.Event) {
	content := evt.Content.AsRoomName()
	if content == nil {
		return
	}
	c.namesMu.Lock()
	c.names[evt.RoomID.String()] = content.Name
	c.namesMu.Unlock()
}

// RoomName returns the room's display name, cached after the first lookup
// and refreshed by m.room.name events. Rooms without a name yield "".
func (c *Client) RoomName(ctx context.Context, roomID string) (string, error) {
	c.namesMu.RLock()
	name, ok := c.names[roomID]
	c.namesMu.RUnlock()
	if ok {
		return name, nil
	}

	var content event.RoomNameEventContent
	err := c.mx.StateEvent(ctx, id.RoomID(roomID), event.StateRoomName, "", &content)
	if err != nil && !errors.Is(err, mautrix.MNotFound) {
		return "", fmt.Errorf("matrix: room name of %s: %w", roomID, err)
	}
	name = strings.TrimSpace(content.Name)

	c.namesMu.Lock()
	c.names[roomID] = name
	c.namesMu.Unlock()
	return name, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, roomID, text string) error {
	if _, err := c.mx.SendText(ctx, id.RoomID(roomID), text); err != nil {
		return fmt.Errorf("matrix: send text: %w", err)
	}
	return nil
}

// SendMarkdown sends text with an HTML rendering when it contains markup.
func (c *Client) SendMarkdown(ctx context.Context, roomID, text string) error {
	html := RenderHTML(text)
	if html == "" {
		return c.SendText(ctx, roomID, text)
	}
	content := event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: html,
	}
	if _, err := c.mx.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send formatted: %w", err)
	}
	return nil
}

// Typing sets or clears the typing indicator.
func (c *Client) Typing(ctx context.Context, roomID string, typing bool) error {
	if _, err := c.mx.UserTyping(ctx, id.RoomID(roomID), typing, typingTimeout); err != nil {
		return fmt.Errorf("matrix: typing: %w", err)
	}
	return nil
}

func (c *Client) join(ctx context.Context, roomID id.RoomID) error {
	_, err := c.mx.JoinRoomByID(ctx, roomID)
	if err != nil && errors.Is(err, mautrix.MForbidden) {
		c.logger.Warn("matrix: join forbidden; assuming membership", "room", roomID)
		return nil
	}
	return err
}
