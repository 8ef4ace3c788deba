package shell

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionforge/sessionforge/internal/billing"
	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/provider"
	"github.com/sessionforge/sessionforge/internal/store"
)

// fakeStore backs only the handful of store.Store methods the bridge
// actually calls; embedding store.Store leaves every other method nil,
// which is fine as long as no test path reaches it.
type fakeStore struct {
	store.Store
	credits float64
	billing *models.SessionBilling
}

func (f *fakeStore) GetUserCredits(ctx context.Context, userID string) (float64, error) {
	return f.credits, nil
}

func (f *fakeStore) GetSessionBillingInfo(ctx context.Context, sessionID string) (*models.SessionBilling, error) {
	if f.billing == nil {
		return nil, sferrors.NotFound("fakeStore.GetSessionBillingInfo", sessionID)
	}
	return f.billing, nil
}

// dialedBridge spins up a real WebSocket handshake over httptest so
// sendText's conn.WriteMessage has somewhere real to write, and returns the
// server-side Bridge plus the client conn for reading what it sent.
func dialedBridge(t *testing.T, fs *fakeStore) (*Bridge, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-serverConnCh
	t.Cleanup(func() { serverConn.Close() })

	mock := provider.NewMock(models.ProviderPods)
	stream, err := mock.OpenShell(context.Background(), "sess-1")
	require.NoError(t, err)

	b := &Bridge{
		conn:      serverConn,
		stream:    stream,
		sessionID: "sess-1",
		userID:    "user-1",
		store:     fs,
		billing:   billing.New(fs, billing.DefaultPricing()),
		startedAt: time.Now().Add(-90 * time.Minute),
		done:      make(chan struct{}),
	}
	return b, clientConn
}

func TestStatusText_ReportsCostAndCredits(t *testing.T) {
	fs := &fakeStore{credits: 42.5, billing: &models.SessionBilling{TotalCost: 1.2345}}
	b := &Bridge{sessionID: "sess-1", userID: "user-1", store: fs, startedAt: time.Now().Add(-90 * time.Minute)}

	out := b.statusText(context.Background())
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "$1.2345")
	assert.Contains(t, out, "$42.50")
}

func TestStatusText_ZeroCostWhenNoBillingRow(t *testing.T) {
	fs := &fakeStore{credits: 10}
	b := &Bridge{sessionID: "sess-1", userID: "user-1", store: fs, startedAt: time.Now()}

	out := b.statusText(context.Background())
	assert.Contains(t, out, "$0.0000")
}

func TestCreditsText_FormatsBalance(t *testing.T) {
	fs := &fakeStore{credits: 7}
	b := &Bridge{sessionID: "sess-1", userID: "user-1", store: fs}

	out := b.creditsText(context.Background())
	assert.Equal(t, "credits: $7.00\r\n", out)
}

func TestWelcomeMessage_IncludesSessionAndUser(t *testing.T) {
	msg := welcomeMessage("sess-1", "user-1")
	assert.True(t, strings.Contains(msg, "sess-1"))
	assert.True(t, strings.Contains(msg, "user-1"))
}

func TestHandleCommand_HelpIsSentAndBridgeStaysOpen(t *testing.T) {
	fs := &fakeStore{credits: 10}
	b, client := dialedBridge(t, fs)

	closed := b.handleCommand(context.Background(), "/help")
	assert.False(t, closed)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "available commands")
}

func TestHandleCommand_ExitClosesBridge(t *testing.T) {
	fs := &fakeStore{credits: 10}
	b, client := dialedBridge(t, fs)

	closed := b.handleCommand(context.Background(), "/exit")
	assert.True(t, closed)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "goodbye")

	select {
	case <-b.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected bridge.done to be closed after /exit")
	}
}

func TestHandleCommand_UnknownCommandRepliesWithHint(t *testing.T) {
	fs := &fakeStore{credits: 10}
	b, client := dialedBridge(t, fs)

	closed := b.handleCommand(context.Background(), "/nonsense")
	assert.False(t, closed)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "unknown command")
}
