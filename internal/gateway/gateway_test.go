package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/quill/backend/internal/auth"
	"github.com/quillhq/quill/backend/internal/protocol"
	"github.com/quillhq/quill/backend/internal/room"
	"github.com/quillhq/quill/backend/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *room.Registry, *auth.Static) {
	t.Helper()

	authorizer := auth.NewStatic()
	authorizer.AddToken("alice-token", "alice")
	authorizer.AddMember("r1", "alice")

	registry := room.NewRegistry(store.NewMemory(), time.Hour, zerolog.Nop())
	handler := New(registry, authorizer, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, registry, authorizer
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expectClose reads until the server closes the channel and returns the
// close code.
func expectClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeErr, ok := err.(*websocket.CloseError)
			require.True(t, ok, "expected a close frame, got %v", err)
			return closeErr.Code
		}
	}
}

func TestRejectsMissingCredentials(t *testing.T) {
	server, registry, _ := newTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{"no token", "?room=r1"},
		{"no room", "?token=alice-token"},
		{"nothing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, server, tt.query)
			assert.Equal(t, CloseMissingCredentials, expectClose(t, conn))
		})
	}

	assert.Equal(t, 0, registry.Len(), "no room state may be touched before authorization")
}

func TestRejectsInvalidToken(t *testing.T) {
	server, registry, _ := newTestServer(t)

	conn := dial(t, server, "?room=r1&token=forged")
	assert.Equal(t, CloseInvalidToken, expectClose(t, conn))
	assert.Equal(t, 0, registry.Len())
}

func TestRejectsUnknownRoom(t *testing.T) {
	server, registry, _ := newTestServer(t)

	conn := dial(t, server, "?room=ghost&token=alice-token")
	assert.Equal(t, CloseRoomNotFound, expectClose(t, conn))
	assert.Equal(t, 0, registry.Len())
}

func TestRejectsNonMember(t *testing.T) {
	server, registry, authorizer := newTestServer(t)
	authorizer.AddToken("bob-token", "bob")

	conn := dial(t, server, "?room=r1&token=bob-token")
	assert.Equal(t, CloseNotMember, expectClose(t, conn))
	assert.Equal(t, 0, registry.Len())
}

func TestAuthorizedJoinReceivesInitialSync(t *testing.T) {
	server, registry, _ := newTestServer(t)

	conn := dial(t, server, "?room=r1&token=alice-token")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	assert.Equal(t, websocket.BinaryMessage, mt)
	require.NotEmpty(t, frame)
	assert.Equal(t, protocol.MessageSync, protocol.Tag(frame))
	assert.Equal(t, 1, registry.Len())
}

func TestBearerHeaderToken(t *testing.T) {
	server, registry, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?room=r1"
	header := http.Header{"Authorization": []string{"Bearer alice-token"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageSync, protocol.Tag(frame))
	assert.Equal(t, 1, registry.Len())
}

func TestDisconnectRemovesConnection(t *testing.T) {
	server, registry, _ := newTestServer(t)

	conn := dial(t, server, "?room=r1&token=alice-token")
	require.Equal(t, 1, registry.Len())

	rm := registry.GetOrCreate("r1")
	require.Eventually(t, func() bool {
		return rm.ConnCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return rm.ConnCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
