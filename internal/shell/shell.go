// Package shell bridges a browser WebSocket connection to a session's
// interactive ProviderDriver shell stream, adapting the register/readPump/
// writePump idiom from the teacher's internal/websocket Hub into a single
// bidirectional per-session bridge instead of a broadcast hub. The session
// caps, idle timeout, and slash-command set are grounded on
// original_source/server/services/shell_service.py.
package shell

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sessionforge/sessionforge/internal/billing"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/provider"
	"github.com/sessionforge/sessionforge/internal/store"
)

const (
	// MaxSessionDuration bounds how long one shell connection may stay open,
	// independent of the session's own TTL.
	MaxSessionDuration = 8 * time.Hour
	// MaxIdleTime closes a shell connection that has received no input for
	// this long.
	MaxIdleTime = 30 * time.Minute
	// CheckInterval is how often the idle/duration/credit caps are checked.
	CheckInterval = 60 * time.Second

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Bridge relays bytes between a WebSocket connection and a session's
// ProviderDriver shell stream, enforcing session caps and handling
// slash-commands locally without forwarding them to the shell.
type Bridge struct {
	conn      *websocket.Conn
	stream    provider.ShellStream
	sessionID string
	userID    string
	store     store.Store
	billing   *billing.Engine

	send chan []byte

	mu           sync.Mutex
	lastActivity time.Time
	startedAt    time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func New(conn *websocket.Conn, stream provider.ShellStream, sessionID, userID string, s store.Store, b *billing.Engine) *Bridge {
	now := time.Now()
	return &Bridge{
		conn:         conn,
		stream:       stream,
		sessionID:    sessionID,
		userID:       userID,
		store:        s,
		billing:      b,
		send:         make(chan []byte, 256),
		lastActivity: now,
		startedAt:    now,
		done:         make(chan struct{}),
	}
}

// Run blocks until the bridge closes, either because the client
// disconnected, the shell stream ended, or a cap was hit.
func (b *Bridge) Run(ctx context.Context) {
	log := logger.Shell()
	log.Info().Str("session_id", b.sessionID).Msg("shell bridge opened")

	b.sendText(welcomeMessage(b.sessionID, b.userID))

	go b.streamToClient()
	go b.monitor(ctx)

	b.clientToStream(ctx)

	<-b.done
	log.Info().Str("session_id", b.sessionID).Msg("shell bridge closed")
}

func (b *Bridge) touch() {
	b.mu.Lock()
	b.lastActivity = time.Now()
	b.mu.Unlock()
}

func (b *Bridge) idleFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastActivity)
}

// clientToStream reads WebSocket frames from the browser, intercepts
// slash-commands, and forwards everything else to the shell stream.
func (b *Bridge) clientToStream(ctx context.Context) {
	defer b.Close()

	b.conn.SetReadDeadline(time.Now().Add(MaxIdleTime))
	b.conn.SetPongHandler(func(string) error {
		b.conn.SetReadDeadline(time.Now().Add(MaxIdleTime))
		return nil
	})

	for {
		_, message, err := b.conn.ReadMessage()
		if err != nil {
			return
		}
		b.touch()

		line := string(message)
		if strings.HasPrefix(strings.TrimSpace(line), "/") {
			if b.handleCommand(ctx, strings.TrimSpace(line)) {
				return
			}
			continue
		}

		if _, err := b.stream.Write(message); err != nil {
			logger.Shell().Warn().Err(err).Str("session_id", b.sessionID).Msg("shell write failed")
			return
		}
	}
}

// streamToClient pumps shell output to the browser and keeps the
// connection alive with periodic pings.
func (b *Bridge) streamToClient() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	outputs := make(chan []byte, 64)
	go func() {
		defer close(outputs)
		buf := make([]byte, 4096)
		for {
			n, err := b.stream.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				outputs <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case chunk, ok := <-outputs:
			if !ok {
				b.Close()
				return
			}
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.TextMessage, chunk); err != nil {
				b.Close()
				return
			}
		case <-ticker.C:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				b.Close()
				return
			}
		case <-b.done:
			return
		}
	}
}

// monitor enforces the independent duration/idle/credit caps every
// CheckInterval, same thresholds as the caller's session TTL.
func (b *Bridge) monitor(ctx context.Context) {
	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			if time.Since(b.startedAt) > MaxSessionDuration {
				b.sendText("\r\nsession duration limit reached, closing shell\r\n")
				b.Close()
				return
			}
			if b.idleFor() > MaxIdleTime {
				b.sendText("\r\nidle timeout, closing shell\r\n")
				b.Close()
				return
			}
			if b.userID != "" {
				credits, err := b.store.GetUserCredits(ctx, b.userID)
				if err == nil && credits <= 0 {
					b.sendText("\r\ninsufficient credits, closing shell\r\n")
					b.Close()
					return
				}
			}
		}
	}
}

// handleCommand executes a local slash-command and returns true if the
// bridge should now close (the /exit command).
func (b *Bridge) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		b.sendText(helpText)
	case "/status":
		b.sendText(b.statusText(ctx))
	case "/credits":
		b.sendText(b.creditsText(ctx))
	case "/exit":
		b.sendText("goodbye\r\n")
		b.Close()
		return true
	default:
		b.sendText(fmt.Sprintf("unknown command %q, try /help\r\n", fields[0]))
	}
	return false
}

func (b *Bridge) statusText(ctx context.Context) string {
	info, err := b.store.GetSessionBillingInfo(ctx, b.sessionID)
	cost := 0.0
	if err == nil && info != nil {
		cost = info.TotalCost
	}
	credits, _ := b.store.GetUserCredits(ctx, b.userID)
	duration := time.Since(b.startedAt)
	return fmt.Sprintf(
		"session status\r\nsession_id: %s\r\nduration: %.2fh\r\ncurrent_cost: $%.4f\r\ncredits: $%.2f\r\n",
		b.sessionID, duration.Hours(), cost, credits,
	)
}

func (b *Bridge) creditsText(ctx context.Context) string {
	credits, err := b.store.GetUserCredits(ctx, b.userID)
	if err != nil {
		return fmt.Sprintf("error getting credits: %v\r\n", err)
	}
	return fmt.Sprintf("credits: $%.2f\r\n", credits)
}

func (b *Bridge) sendText(s string) {
	b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = b.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// Close tears down the stream and connection exactly once.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		_ = b.stream.Close()
		_ = b.conn.Close()
		close(b.done)
	})
}

const helpText = `available commands
/help     - show this message
/status   - show session status and billing info
/credits  - show current credit balance
/exit     - close this shell session
regular shell commands work normally
`

func welcomeMessage(sessionID, userID string) string {
	return fmt.Sprintf(
		"sessionforge interactive shell\r\nsession: %s\r\nuser: %s\r\ntype /help for available commands\r\nsession limit: %s\r\n",
		sessionID, userID, MaxSessionDuration,
	)
}
