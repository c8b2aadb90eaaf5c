package rawsheets

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type RunsChangedType string

const (
	RunsChangedInsert RunsChangedType = "insert"
	RunsChangedUpdate RunsChangedType = "update"
	RunsChangedDelete RunsChangedType = "delete"
)

// RunsChangedMessage tells views of an event which rows changed so they can
// select and highlight them without diffing the sheet.
type RunsChangedMessage struct {
	Type        RunsChangedType `json:"type"`
	EventID     uuid.UUID       `json:"event_id"`
	Runs        []runResponse   `json:"runs"`
	SelectRunID uuid.UUID       `json:"select_run_id"`
	ShiftRunIDs []uuid.UUID     `json:"shift_run_ids"`
}

type Broadcaster interface {
	Send(message RunsChangedMessage)
}

type NilBroadcaster struct{}

func (NilBroadcaster) Send(message RunsChangedMessage) {
	logrus.WithField("event", message.EventID).Debugf("Runs changed: %s", message.Type)
}

type RunsHub struct {
	clients    map[*runsClient]bool
	broadcast  chan RunsChangedMessage
	register   chan *runsClient
	unregister chan *runsClient
}

func NewRunsHub() *RunsHub {
	return &RunsHub{
		broadcast:  make(chan RunsChangedMessage),
		register:   make(chan *runsClient),
		unregister: make(chan *runsClient),
		clients:    make(map[*runsClient]bool),
	}
}

func (h *RunsHub) Send(message RunsChangedMessage) {
	h.broadcast <- message
}

func (h *RunsHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if h.clients[client] {
				close(client.receive)
				delete(h.clients, client)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if client.eventID != message.EventID {
					continue
				}

				select {
				case client.receive <- message:
				default:
					close(client.receive)
					delete(h.clients, client)
				}
			}
		}
	}
}

type runsClient struct {
	hub     *RunsHub
	eventID uuid.UUID

	conn    *websocket.Conn
	receive chan RunsChangedMessage
}

// readPump discards incoming messages and unregisters the client once the
// connection is closed by the peer.
func (c *runsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *runsClient) writePump() {
	ticker := time.NewTicker(time.Second * 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.receive:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := c.conn.WriteJSON(message)

			if err != nil && !strings.HasSuffix(err.Error(), "write: broken pipe") {
				logrus.WithError(err).Errorf("Could not send websocket message")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *RunsHub) websocketHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))

	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := upgrader.Upgrade(w, r, nil)

	if err != nil {
		logrus.WithError(err).Error("Could not upgrade runs websocket")
		return
	}

	client := &runsClient{hub: h, eventID: eventID, conn: c, receive: make(chan RunsChangedMessage, 256)}
	client.hub.register <- client

	go panicCapture(client.writePump)
	go panicCapture(client.readPump)
}
