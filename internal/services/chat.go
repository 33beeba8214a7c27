package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/models"
)

const (
	ChatInitializing = "Initializing"
	ChatLoaded       = "Loaded"

	triggerLoaded = "LOADED"
)

var ErrChatNotLoaded = errors.New("chat history not loaded")

// ChatStore keeps the message history of each room.
type ChatStore interface {
	AppendMessage(ctx context.Context, roomSlug string, msg models.Message) error
	RecentMessages(ctx context.Context, roomSlug string, limit int) ([]models.Message, error)
}

// Chat is the per-room chat a connection runs while it is in a room.
type Chat struct {
	region   *entity.Region
	roomSlug string
	store    ChatStore
	limit    int
	history  []models.Message
	typingAt time.Time
	now      func() time.Time
}

// StartChat returns a chat for roomSlug that still has to Load its history.
func StartChat(roomSlug string, store ChatStore, limit int) *Chat {
	c := &Chat{
		region:   entity.NewRegion("Chat", ChatInitializing),
		roomSlug: roomSlug,
		store:    store,
		limit:    limit,
		now:      time.Now,
	}
	c.region.Configure(ChatInitializing).Permit(triggerLoaded, ChatLoaded)
	return c
}

// Load fetches recent history and moves the chat to Loaded.
func (c *Chat) Load(ctx context.Context) error {
	msgs, err := c.store.RecentMessages(ctx, c.roomSlug, c.limit)
	if err != nil {
		return fmt.Errorf("load chat for %s: %w", c.roomSlug, err)
	}
	c.history = msgs
	return c.region.Fire(ctx, triggerLoaded)
}

// Handle processes TYPE and SEND. A sent message is returned so the caller
// can fan it out to the room.
func (c *Chat) Handle(ctx context.Context, senderEntityID string, cmd models.Command) (*models.Message, error) {
	if !c.region.Is(ChatLoaded) {
		return nil, ErrChatNotLoaded
	}
	switch cmd.Type {
	case models.CmdTyping:
		c.typingAt = c.now()
		return nil, nil
	case models.CmdSend:
		msg := models.Message{
			ID:             models.NewSnowflakeID(),
			Type:           models.MessageTypePlain,
			SenderEntityID: senderEntityID,
			Message:        cmd.Message,
			SentAt:         c.now().UTC(),
		}
		if err := c.store.AppendMessage(ctx, c.roomSlug, msg); err != nil {
			return nil, fmt.Errorf("store chat message: %w", err)
		}
		c.history = append(c.history, msg)
		if len(c.history) > c.limit {
			c.history = c.history[len(c.history)-c.limit:]
		}
		c.typingAt = time.Time{}
		return &msg, nil
	}
	return nil, fmt.Errorf("%w: %s", entity.ErrUnhandledCommand, cmd.Type)
}

// History is the loaded history plus everything sent since, capped at the limit.
func (c *Chat) History() []models.Message { return append([]models.Message(nil), c.history...) }

func (c *Chat) TypingAt() time.Time { return c.typingAt }

// State is the mirror kept on the connection entity.
func (c *Chat) State() *models.ChatServiceState {
	st := &models.ChatServiceState{Value: c.region.Current()}
	st.Context.RoomSlug = c.roomSlug
	if !c.typingAt.IsZero() {
		at := c.typingAt.UTC()
		st.Context.TypingAt = &at
	}
	return st
}
