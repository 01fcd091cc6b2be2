package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"exam-session-service/internal/app"
	"exam-session-service/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Inbound message types.
const (
	msgIdentify = "identify"
	msgLogout   = "logout"
	msgSubmit   = "submit"
	msgSnapshot = "snapshot"
)

type WSHandler struct {
	session  *app.SessionService
	upgrader websocket.Upgrader
	validate *validator.Validate
	log      zerolog.Logger
}

// NewWSHandler accepts any origin when allowedOrigins is empty.
func NewWSHandler(session *app.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		session:  session,
		upgrader: buildUpgrader(allowedOrigins),
		validate: validator.New(),
		log:      log.With().Str("component", "ws_handler").Logger(),
	}
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type identifyPayload struct {
	Name string `json:"name" validate:"required,max=64"`
}

// Participant falls back to the name the connection identified with.
type submitPayload struct {
	ExamID      string            `json:"examId" validate:"required"`
	Participant string            `json:"participant" validate:"omitempty,max=64"`
	Answers     map[string]string `json:"answers" validate:"required"`
}

// wsConn is the bus side of a client socket. The bus pump is its only
// writer; pings go through WriteControl, which gorilla allows concurrently.
type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *wsConn) Send(ev domain.Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Serve upgrades the request and runs the client until it disconnects. The
// snapshot is queued before the first broadcast the client can observe.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	wc := &wsConn{conn: conn, done: make(chan struct{})}
	id := h.session.Connect(wc)
	log := h.log.With().Str("conn", id).Logger()
	log.Debug().Msg("client connected")
	defer h.session.Disconnect(id)
	go wc.keepAlive()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("unexpected close")
			} else {
				log.Debug().Msg("client disconnected")
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(id, CodeInvalidPayload, "message must be a JSON object with type and payload")
			continue
		}
		h.handle(ctx, id, msg)
	}
}

func (h *WSHandler) handle(ctx context.Context, id string, msg inboundMessage) {
	switch msg.Type {
	case msgIdentify:
		var p identifyPayload
		if !h.decode(id, msg.Payload, &p) {
			return
		}
		if err := h.session.Identify(id, p.Name); err != nil {
			h.replyErr(id, err)
		}
	case msgLogout:
		h.session.Forget(id)
	case msgSubmit:
		var p submitPayload
		if !h.decode(id, msg.Payload, &p) {
			return
		}
		participant := p.Participant
		if strings.TrimSpace(participant) == "" {
			participant, _ = h.session.ParticipantName(id)
		}
		sub, err := h.session.Submit(ctx, p.ExamID, participant, p.Answers)
		if err != nil {
			h.replyErr(id, err)
			return
		}
		h.session.Notify(id, domain.Event{Type: domain.EventSubmitted, Payload: domain.Submitted{Submission: sub.Summary()}})
	case msgSnapshot:
		h.session.Resync(id)
	default:
		h.reply(id, CodeUnknownMessage, "unsupported message type "+msg.Type)
	}
}

func (h *WSHandler) decode(id string, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		h.reply(id, CodeInvalidPayload, err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.reply(id, CodeInvalidPayload, err.Error())
		return false
	}
	return true
}

func (h *WSHandler) replyErr(id string, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= 500 {
		h.log.Error().Err(err).Str("conn", id).Msg("client action failed")
		if code == CodeInternal {
			msg = "internal error"
		}
	}
	h.reply(id, code, msg)
}

func (h *WSHandler) reply(id string, code ErrCode, msg string) {
	h.session.Notify(id, domain.NewErrorEvent(string(code), msg))
}
