package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/care"
	"github.com/ironsheep/coloring-care/internal/metrics"
)

const (
	pingInterval   = 30 * time.Second
	readDeadline   = 60 * time.Second
	writeDeadline  = 10 * time.Second
	sendBufferSize = 64

	// maxMessageBytes bounds one inbound frame; finalize carries the canvas.
	maxMessageBytes = 32 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The coloring page may be served from another origin.
	},
}

// Client → server message types.
const (
	TypeMode     = "mode"
	TypeTemplate = "template"
	TypeEvent    = "event"
	TypeMetrics  = "metrics"
	TypeFinalize = "finalize"
)

// Server → client message types.
const (
	TypeSession   = "session"
	TypeFinalized = "finalized"
	TypeNudge     = "nudge"
	TypeError     = "error"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Client → server payloads.

type ModePayload struct {
	Mode string `json:"mode"`
}

type TemplatePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type EventPayload struct {
	Kind      string   `json:"kind"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Timestamp *int64   `json:"timestamp"`
}

type FinalizePayload struct {
	// Canvas is a PNG data URL of the finished picture.
	Canvas     string  `json:"canvas"`
	ImageID    string  `json:"imageId"`
	Context    string  `json:"context"`
	UserID     *string `json:"userId"`
	SkipReport bool    `json:"skipReport"`
}

// Server → client payloads.

type ErrorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// wsClient is one care connection and the tracker it owns.
type wsClient struct {
	ctx     context.Context
	conn    *websocket.Conn
	tracker *care.Tracker
	api     *API

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue queues data for the write pump. It drops the message when the
// buffer is full or the client is gone.
func (c *wsClient) enqueue(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.api.log.Warn("Care socket buffer full, dropping message",
			zap.String("tracker", c.tracker.ID()),
			zap.String("type", msg.Type),
		)
	}
}

func (c *wsClient) reply(msgType string, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return
	}
	c.enqueue(msg)
}

func (c *wsClient) replyError(err error) {
	c.reply(TypeError, ErrorPayload{Message: err.Error(), Status: statusFor(err)})
}

func (c *wsClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// handleCareSocket upgrades the connection and opens a tracker for it. The
// tracker lives exactly as long as the socket.
func (a *API) handleCareSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		ctx:     c.Request.Context(),
		conn:    conn,
		tracker: a.trackers.Open(),
		api:     a,
		send:    make(chan []byte, sendBufferSize),
	}

	a.clientsMu.Lock()
	a.clients[client.tracker.ID()] = client
	a.clientsMu.Unlock()

	a.log.Info("Care client connected", zap.String("tracker", client.tracker.ID()))
	a.sendSession(client)

	go client.writePump()
	client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *wsClient) readPump() {
	defer func() {
		c.api.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.api.log.Warn("Care socket read error", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		c.api.handleMessage(c, raw)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient closes the client's tracker, then its send queue. Closing
// the tracker first waits out any nudge that is being delivered.
func (a *API) removeClient(c *wsClient) {
	id := c.tracker.ID()
	a.clientsMu.Lock()
	delete(a.clients, id)
	a.clientsMu.Unlock()

	if err := a.trackers.Close(id); err != nil && !errors.Is(err, care.ErrTrackerNotFound) {
		a.log.Warn("Could not close tracker", zap.String("tracker", id), zap.Error(err))
	}
	c.closeSend()
	a.log.Info("Care client disconnected", zap.String("tracker", id))
}

// notifyNudge routes a nudge to the socket that owns the tracker.
func (a *API) notifyNudge(n care.NudgeNotice) {
	a.clientsMu.RLock()
	c, ok := a.clients[n.TrackerID]
	a.clientsMu.RUnlock()
	if !ok {
		return
	}
	c.reply(TypeNudge, n)
}

// closeClients disconnects every care socket.
func (a *API) closeClients() {
	a.clientsMu.RLock()
	clients := make([]*wsClient, 0, len(a.clients))
	for _, c := range a.clients {
		clients = append(clients, c)
	}
	a.clientsMu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (a *API) sendSession(c *wsClient) {
	info, _ := c.tracker.Session()
	c.reply(TypeSession, info)
}

// handleMessage dispatches one client message. Events are not acknowledged;
// every other request gets a reply or an error.
func (a *API) handleMessage(c *wsClient, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.replyError(badRequest("invalid message: " + err.Error()))
		return
	}

	var err error
	switch msg.Type {
	case TypeMode:
		err = a.handleWSMode(c, msg.Payload)
	case TypeTemplate:
		err = a.handleWSTemplate(c, msg.Payload)
	case TypeEvent:
		err = a.handleWSEvent(c, msg.Payload)
	case TypeMetrics:
		err = a.handleWSMetrics(c)
	case TypeFinalize:
		err = a.handleWSFinalize(c, msg.Payload)
	default:
		err = badRequest(fmt.Sprintf("unknown message type %q", msg.Type))
	}
	if err != nil {
		c.replyError(err)
	}
}

// decodePayload unmarshals an optional payload into v.
func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return badRequest("invalid payload: " + err.Error())
	}
	return nil
}

func (a *API) handleWSMode(c *wsClient, raw json.RawMessage) error {
	var p ModePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	mode, err := care.ParseMode(p.Mode)
	if err != nil {
		return badRequest(err.Error())
	}
	c.tracker.SetMode(mode)
	a.sendSession(c)
	return nil
}

func (a *API) handleWSTemplate(c *wsClient, raw json.RawMessage) error {
	var p TemplatePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	info, err := c.tracker.LoadTemplate(metrics.Canvas{Width: p.Width, Height: p.Height})
	if err != nil {
		return err
	}
	c.reply(TypeSession, info)
	return nil
}

func (a *API) handleWSEvent(c *wsClient, raw json.RawMessage) error {
	var p EventPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	in := care.EventInput{Kind: p.Kind, Timestamp: p.Timestamp}
	if p.X != nil || p.Y != nil {
		if p.X == nil || p.Y == nil {
			return badRequest("x and y must be given together")
		}
		in.Position = &metrics.Position{X: *p.X, Y: *p.Y}
	}
	_, err := c.tracker.Record(in)
	return err
}

func (a *API) handleWSMetrics(c *wsClient) error {
	m, err := c.tracker.Metrics()
	if err != nil {
		return err
	}
	c.reply(TypeMetrics, m)
	return nil
}

func (a *API) handleWSFinalize(c *wsClient, raw json.RawMessage) error {
	var p FinalizePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	req := care.FinalizeRequest{
		ImageID:    p.ImageID,
		Context:    p.Context,
		UserID:     p.UserID,
		SkipReport: p.SkipReport,
	}
	if p.Canvas != "" {
		data, err := decodeDataURL(p.Canvas)
		if err != nil {
			return err
		}
		req.CanvasPNG = data
	}

	res, err := c.tracker.Finalize(c.ctx, req)
	if err != nil {
		return err
	}
	c.reply(TypeFinalized, res)
	a.sendSession(c)
	return nil
}
