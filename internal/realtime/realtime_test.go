package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePresence struct {
	mu    sync.Mutex
	marks map[int64]int
}

func (f *fakePresence) MarkOnline(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marks == nil {
		f.marks = map[int64]int{}
	}
	f.marks[userID]++
	return nil
}

func (f *fakePresence) count(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks[userID]
}

func newRealtimeServer(t *testing.T) (*Hub, *fakePresence, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(zap.NewNop())
	presence := &fakePresence{}
	handler := NewHandler(hub, presence, zap.NewNop())

	r := gin.New()
	r.GET("/ws/notifications", handler.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"
	return hub, presence, wsURL
}

func dial(t *testing.T, wsURL string, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if userID != "" {
		header.Set("X-User-ID", userID)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) CountUpdate {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var update CountUpdate
	require.NoError(t, conn.ReadJSON(&update))
	return update
}

func TestServeRejectsMissingIdentity(t *testing.T) {
	_, _, wsURL := newRealtimeServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPushFansOutToEverySessionOfTheUser(t *testing.T) {
	hub, _, wsURL := newRealtimeServer(t)

	tab1 := dial(t, wsURL, "1")
	tab2 := dial(t, wsURL, "1")
	other := dial(t, wsURL, "2")

	require.Eventually(t, func() bool {
		return hub.SessionCount(1) == 2 && hub.SessionCount(2) == 1
	}, 5*time.Second, 10*time.Millisecond)

	hub.PushUnreadCount(1, 5, true)

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		update := readUpdate(t, conn)
		require.EqualValues(t, 5, update.UnreadNotificationsCount)
		require.True(t, update.UpdateList)
	}

	// The other user hears nothing.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var update CountUpdate
	require.Error(t, other.ReadJSON(&update))
}

func TestPushToUserWithoutSessionsIsNoOp(t *testing.T) {
	hub, _, _ := newRealtimeServer(t)
	hub.PushUnreadCount(99, 1, false)
	require.Zero(t, hub.SessionCount(99))
}

func TestConnectAndHeartbeatMarkOnline(t *testing.T) {
	hub, presence, wsURL := newRealtimeServer(t)

	conn := dial(t, wsURL, "7")
	require.Eventually(t, func() bool { return hub.SessionCount(7) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return presence.count(7) == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)))
	require.Eventually(t, func() bool { return presence.count(7) == 2 }, 5*time.Second, 10*time.Millisecond)

	// Unknown client messages are ignored, not fatal.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.Eventually(t, func() bool { return hub.SessionCount(7) == 1 }, time.Second, 10*time.Millisecond)
}

func TestDisconnectLeavesGroupOnly(t *testing.T) {
	hub, presence, wsURL := newRealtimeServer(t)

	conn := dial(t, wsURL, "7")
	require.Eventually(t, func() bool { return hub.SessionCount(7) == 1 }, 5*time.Second, 10*time.Millisecond)

	before := presence.count(7)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.SessionCount(7) == 0 }, 5*time.Second, 10*time.Millisecond)

	// No offline write happened; the presence key just expires on TTL.
	require.Equal(t, before, presence.count(7))
}
