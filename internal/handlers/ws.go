// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/explorers/internal/entities"
	"github.com/jason-s-yu/explorers/internal/entity"
	"github.com/jason-s-yu/explorers/internal/middleware"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/jason-s-yu/explorers/internal/world"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "explorers"

const (
	outBufferSize = 256
	pingInterval  = 30 * time.Second
	writeTimeout  = 5 * time.Second

	commandRate  = rate.Limit(20)
	commandBurst = 40
)

var (
	errNotAddressable = errors.New("entity cannot be addressed from this connection")
	errRateLimited    = errors.New("too many commands, slow down")
)

// ClientEvent is a command frame sent by a client. Without EntityID the
// command goes to the client's own connection entity.
type ClientEvent struct {
	ID       string         `json:"id" validate:"required,max=64"`
	EntityID string         `json:"entityId,omitempty"`
	Command  models.Command `json:"command"`
}

// wsClient is the server side of one websocket: its connection entity and the
// queue of frames waiting for the write pump.
type wsClient struct {
	conn    *entities.Connection
	out     chan []byte
	cancel  context.CancelFunc
	logger  *logrus.Entry
	limiter *rate.Limiter

	slow atomic.Bool
	kick chan struct{}

	mu    sync.Mutex
	ready bool
	dirty map[string]bool
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: origins,
	})
	if err != nil {
		s.Logger.WithError(err).Warn("websocket accept")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the explorers subprotocol")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := s.Manager.NewConnection(ctx)
	if err != nil {
		s.Logger.WithError(err).Error("create connection entity")
		c.Close(ConnectionSetupError, "could not create connection")
		return
	}
	client := &wsClient{
		conn:    conn,
		out:     make(chan []byte, outBufferSize),
		cancel:  cancel,
		logger:  s.Logger.WithField("connectionEntityId", conn.ID()),
		limiter: rate.NewLimiter(commandRate, commandBurst),
		dirty:   make(map[string]bool),
		kick:    make(chan struct{}),
	}
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	client.send(map[string]string{"type": "connected", "connectionEntityId": conn.ID()})
	current, unsubscribe := s.Manager.World().Watch(client.onListEvent)
	client.sync(s.Manager.World(), current)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		client.writePump(ctx, c)
	}()
	readErr := client.readPump(ctx, c)

	unsubscribe()
	if client.slow.Load() {
		// The write pump owns the close handshake of a slow client.
		<-writeDone
	}
	cancel()
	<-writeDone
	if err := s.Manager.Disconnect(context.Background(), conn); err != nil {
		client.logger.WithError(err).Warn("disconnect cleanup")
	}
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, readErr)

	if !client.slow.Load() {
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// visible hides other clients' connection entities; they carry auth tokens.
func (cl *wsClient) visible(id string, schema models.SchemaType) bool {
	return schema != models.SchemaConnection || id == cl.conn.ID()
}

// onListEvent forwards world events once the initial sync is done. Before
// that, touched entities are only marked so sync can resend them whole.
func (cl *wsClient) onListEvent(ev world.ListEvent) {
	cl.mu.Lock()
	if !cl.ready {
		for _, rec := range ev.Entities {
			cl.dirty[rec.ID] = true
		}
		for _, ch := range ev.ChangedEntities {
			cl.dirty[ch.ID] = true
		}
		cl.mu.Unlock()
		return
	}
	cl.mu.Unlock()

	out := world.ListEvent{Type: ev.Type}
	for _, rec := range ev.Entities {
		if cl.visible(rec.ID, rec.Schema) {
			out.Entities = append(out.Entities, rec)
		}
	}
	for _, ch := range ev.ChangedEntities {
		if cl.visible(ch.ID, ch.Schema) {
			out.ChangedEntities = append(out.ChangedEntities, ch)
		}
	}
	if len(out.Entities) == 0 && len(out.ChangedEntities) == 0 {
		return
	}
	cl.send(out)
}

// sync sends the initial ADDED event, then resends any entity that changed
// while it was being built until no more changes slip in.
func (cl *wsClient) sync(w *world.World, current []entity.Entity) {
	cl.sendRecords(current)
	for {
		cl.mu.Lock()
		if len(cl.dirty) == 0 {
			cl.ready = true
			cl.mu.Unlock()
			return
		}
		ids := cl.dirty
		cl.dirty = make(map[string]bool)
		cl.mu.Unlock()

		var present []entity.Entity
		var removed []world.Record
		for id := range ids {
			if e, ok := w.Get(id); ok {
				present = append(present, e)
			} else {
				doc, _ := json.Marshal(map[string]string{"id": id})
				removed = append(removed, world.Record{ID: id, Doc: doc})
			}
		}
		cl.sendRecords(present)
		if len(removed) > 0 {
			cl.send(world.ListEvent{Type: world.ListRemoved, Entities: removed})
		}
	}
}

func (cl *wsClient) sendRecords(list []entity.Entity) {
	recs := make([]world.Record, 0, len(list))
	for _, e := range list {
		if cl.visible(e.ID(), e.Schema()) {
			recs = append(recs, world.RecordOf(e))
		}
	}
	if len(recs) > 0 {
		cl.send(world.ListEvent{Type: world.ListAdded, Entities: recs})
	}
}

// send queues v for the write pump. A client whose queue is full is marked
// slow; the write pump then closes it with SlowConsumerError.
func (cl *wsClient) send(v any) {
	if cl.slow.Load() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		cl.logger.WithError(err).Error("marshal outgoing frame")
		return
	}
	select {
	case cl.out <- data:
	default:
		if !cl.slow.Swap(true) {
			cl.logger.Warn("outgoing queue full, dropping client")
			close(cl.kick)
		}
	}
}

func (cl *wsClient) reply(id string, err error) {
	if err != nil {
		cl.send(map[string]string{"type": "error", "id": id, "message": err.Error()})
		return
	}
	cl.send(map[string]string{"type": "ack", "id": id})
}

func (cl *wsClient) readPump(ctx context.Context, c *websocket.Conn) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			cl.logger.WithField("messageType", typ).Debug("ignoring non-text frame")
			continue
		}

		var ev ClientEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			cl.reply("", errors.New("invalid JSON"))
			continue
		}
		if err := models.ValidateStruct(ev); err != nil {
			cl.reply(ev.ID, err)
			continue
		}
		if !cl.limiter.Allow() {
			cl.reply(ev.ID, errRateLimited)
			continue
		}
		cl.reply(ev.ID, cl.dispatch(ctx, ev))
	}
}

// dispatch routes a client command to its own connection or, for the room
// commands, to the room the connection is in.
func (cl *wsClient) dispatch(ctx context.Context, ev ClientEvent) error {
	cmd := ev.Command
	cmd.UserID = ""
	if ev.EntityID == "" || ev.EntityID == cl.conn.ID() {
		return cl.conn.Send(ctx, cmd)
	}

	room := cl.conn.Room()
	if room == nil || room.ID() != ev.EntityID {
		return errNotAddressable
	}
	switch cmd.Type {
	case models.CmdJoin, models.CmdStart, models.CmdLeave, models.CmdConfigureGame:
	default:
		return errNotAddressable
	}
	cmd.ConnectionEntityID = cl.conn.ID()
	cmd.UserID = cl.conn.UserID()
	return room.Send(ctx, cmd)
}

func (cl *wsClient) writePump(ctx context.Context, c *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.kick:
			cl.closeSlow(c)
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-cl.kick:
			cl.closeSlow(c)
			return
		case data := <-cl.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				cl.logger.WithError(err).Debug("websocket write failed")
				cl.cancel()
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				cl.logger.WithError(err).Debug("websocket ping failed")
				cl.cancel()
				return
			}
		}
	}
}

// closeSlow sends the close frame before the read side is cancelled, since
// cancelling a read tears the connection down without one.
func (cl *wsClient) closeSlow(c *websocket.Conn) {
	if err := c.Close(SlowConsumerError, "too far behind"); err != nil {
		cl.logger.WithError(err).Debug("close slow client")
	}
	cl.cancel()
}
