package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quillhq/quill/backend/internal/auth"
	"github.com/quillhq/quill/backend/internal/room"
)

// Close codes for rejected channels, stable across releases.
const (
	CloseMissingCredentials = 4001
	CloseInvalidToken       = 4002
	CloseRoomNotFound       = 4003
	CloseNotMember          = 4004
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler authenticates and authorizes each incoming channel, then binds it
// to its room. No room state is touched before authorization succeeds.
type Handler struct {
	registry *room.Registry
	auth     auth.Authorizer
	log      zerolog.Logger
}

func New(registry *room.Registry, authorizer auth.Authorizer, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		auth:     authorizer,
		log:      log,
	}
}

// ServeWS handles GET /ws?room={roomId}&token={token}. The token may also
// arrive as an Authorization bearer header.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	token := bearerToken(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	ctx := r.Context()

	if token == "" || roomID == "" {
		h.reject(conn, CloseMissingCredentials, "missing credentials")
		return
	}

	identity, err := h.auth.VerifyToken(ctx, token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			h.log.Error().Err(err).Msg("token verification failed")
			h.reject(conn, websocket.CloseInternalServerErr, "verification unavailable")
			return
		}
		h.reject(conn, CloseInvalidToken, "invalid or expired token")
		return
	}

	member, err := h.auth.IsMember(ctx, identity, roomID)
	if err != nil {
		if errors.Is(err, auth.ErrRoomNotFound) {
			h.reject(conn, CloseRoomNotFound, "room not found")
			return
		}
		h.log.Error().Err(err).Msg("membership lookup failed")
		h.reject(conn, websocket.CloseInternalServerErr, "membership unavailable")
		return
	}
	if !member {
		h.reject(conn, CloseNotMember, "not a member")
		return
	}

	rm := h.registry.GetOrCreate(roomID)
	client := newClient(conn, identity.UserID, h.log)
	client.room = rm

	if err := rm.AddConnection(ctx, client); err != nil {
		if errors.Is(err, room.ErrRoomClosed) {
			// Lost a race with the idle evictor; the registry will hand
			// out a fresh room.
			rm = h.registry.GetOrCreate(roomID)
			client.room = rm
			err = rm.AddConnection(ctx, client)
		}
		if err != nil {
			h.log.Warn().Err(err).Str("room", roomID).Msg("join failed")
			h.reject(conn, websocket.CloseTryAgainLater, "join failed")
			return
		}
	}

	go client.writePump()
	go client.readPump()
}

func (h *Handler) reject(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(writeWait)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		h.log.Debug().Err(err).Msg("close write failed")
	}
	conn.Close()
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
