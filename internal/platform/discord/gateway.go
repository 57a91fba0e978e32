package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chartsignal/internal/domain"
)

const (
	defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// resumeFailureLimit is how many consecutive failed reconnect attempts are
	// tolerated before the session handle is discarded, so the next attempt
	// dials the primary gateway and identifies fresh instead of retrying a
	// dead resume endpoint forever.
	resumeFailureLimit = 3
)

// MessageHandler is called for every MESSAGE_CREATE dispatch.
type MessageHandler func(domain.ChatMessage)

// Gateway is a WebSocket client for the Discord gateway. It manages the
// connection lifecycle (hello, identify, heartbeating) and dispatches incoming
// messages to registered handlers. On disconnect it resumes the session when
// the server still holds it, otherwise re-identifies, with exponential backoff
// either way.
type Gateway struct {
	url    string
	token  string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	seq    int64

	// Session handle from READY. A non-empty sessionID means the next
	// connection attempt sends RESUME instead of IDENTIFY.
	sessionID string
	resumeURL string

	handlerMu sync.RWMutex
	handlers  []MessageHandler

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewGateway creates a gateway client for the given bot token. gatewayURL may
// be empty to use the public endpoint.
func NewGateway(token, gatewayURL string, logger *slog.Logger) *Gateway {
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}
	return &Gateway{
		url:    gatewayURL,
		token:  token,
		logger: logger.With(slog.String("component", "discord.gateway")),
		done:   make(chan struct{}),
	}
}

// OnMessage registers a handler invoked for every incoming chat message.
// Handlers must not block; slow work belongs on the caller's side of a channel.
func (g *Gateway) OnMessage(h MessageHandler) {
	g.handlerMu.Lock()
	defer g.handlerMu.Unlock()
	g.handlers = append(g.handlers, h)
}

// Connect dials the gateway, completes the hello/identify handshake, and
// starts the read and heartbeat loops.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return fmt.Errorf("discord/gateway: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, g.dialTarget(), nil)
	if err != nil {
		return fmt.Errorf("discord/gateway: connect: %w", err)
	}
	g.conn = conn

	// The first frame must be HELLO with the heartbeat interval.
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("discord/gateway: read hello: %w", err)
	}
	if hello.Op != opHello {
		conn.Close()
		return fmt.Errorf("discord/gateway: expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		conn.Close()
		return fmt.Errorf("discord/gateway: decode hello: %w", err)
	}

	if g.sessionID != "" {
		err = g.sendPayload(conn, gatewayPayload{Op: opResume, D: mustMarshal(resumeData{
			Token:     g.token,
			SessionID: g.sessionID,
			Seq:       g.seq,
		})})
	} else {
		err = g.sendPayload(conn, gatewayPayload{Op: opIdentify, D: mustMarshal(identifyData{
			Token:   g.token,
			Intents: defaultIntents,
			Properties: identifyProperties{
				OS: "linux", Browser: "chartsignal", Device: "chartsignal",
			},
		})})
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("discord/gateway: handshake: %w", err)
	}

	go g.readLoop(conn)
	go g.heartbeatLoop(conn, time.Duration(hd.HeartbeatInterval)*time.Millisecond)

	g.logger.Info("gateway connected",
		slog.Duration("heartbeat_interval", time.Duration(hd.HeartbeatInterval)*time.Millisecond))
	return nil
}

// Close shuts down the connection and stops the loops.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	close(g.done)

	if g.conn != nil {
		_ = g.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return g.conn.Close()
	}
	return nil
}

func (g *Gateway) sendPayload(conn *websocket.Conn, p gatewayPayload) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(p)
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// readLoop reads frames from conn until it fails or the client is closed,
// then triggers reconnection. Each Connect starts a fresh readLoop, so the
// loop is bound to its own conn rather than the client's current one.
func (g *Gateway) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-g.done:
			return
		default:
		}

		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			select {
			case <-g.done:
				return
			default:
			}
			g.logger.Warn("gateway read failed, reconnecting", slog.String("error", err.Error()))
			g.reconnect()
			return
		}

		g.handlePayload(conn, payload)
	}
}

// heartbeatLoop sends heartbeats at the server-provided interval. It exits
// when a write fails; the read loop notices the broken connection and handles
// reconnection.
func (g *Gateway) heartbeatLoop(conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			if err := g.sendHeartbeat(conn); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) sendHeartbeat(conn *websocket.Conn) error {
	g.mu.RLock()
	seq := g.seq
	g.mu.RUnlock()

	d := json.RawMessage("null")
	if seq > 0 {
		d = mustMarshal(seq)
	}
	return g.sendPayload(conn, gatewayPayload{Op: opHeartbeat, D: d})
}

// handlePayload routes one gateway frame.
func (g *Gateway) handlePayload(conn *websocket.Conn, p gatewayPayload) {
	if p.S != nil {
		g.mu.Lock()
		g.seq = *p.S
		g.mu.Unlock()
	}

	switch p.Op {
	case opDispatch:
		if p.T == "READY" {
			var rd readyData
			if err := json.Unmarshal(p.D, &rd); err == nil {
				g.mu.Lock()
				g.sessionID = rd.SessionID
				g.resumeURL = rd.ResumeGatewayURL
				g.mu.Unlock()
			}
			return
		}
		if p.T != "MESSAGE_CREATE" {
			return
		}
		var mc messageCreate
		if err := json.Unmarshal(p.D, &mc); err != nil {
			return // drop unparseable dispatches
		}
		if mc.Author.Bot {
			return
		}
		msg := mc.toDomain()

		g.handlerMu.RLock()
		handlers := g.handlers
		g.handlerMu.RUnlock()

		for _, h := range handlers {
			h(msg)
		}

	case opHeartbeat:
		// The server may request an immediate heartbeat.
		_ = g.sendHeartbeat(conn)

	case opReconnect:
		// Session stays resumable; reconnect through the resume endpoint.
		g.logger.Warn("gateway requested reconnect")
		conn.Close()
		// The read loop's next ReadJSON fails and drives reconnection.

	case opInvalidSess:
		g.logger.Warn("gateway invalidated session")
		g.mu.Lock()
		g.sessionID = ""
		g.resumeURL = ""
		g.mu.Unlock()
		conn.Close()

	case opHeartbeatACK:
		// Nothing to track; a dead connection surfaces as a read error.
	}
}

// dialTarget returns the URL for the next connection attempt: the resume
// endpoint while a session handle is held, otherwise the primary gateway.
// Callers must hold g.mu.
func (g *Gateway) dialTarget() string {
	if g.sessionID != "" && g.resumeURL != "" {
		return g.resumeURL
	}
	return g.url
}

// dropSession discards the resume handle so the next connection attempt dials
// the primary gateway and identifies fresh.
func (g *Gateway) dropSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionID == "" {
		return
	}
	g.logger.Warn("discarding gateway session, next attempt identifies fresh")
	g.sessionID = ""
	g.resumeURL = ""
}

// reconnect re-establishes the gateway connection with exponential backoff.
// It blocks until successful or the client is closed. After repeated failures
// the session handle is dropped in case the resume endpoint itself is dead.
func (g *Gateway) reconnect() {
	delay := reconnectDelay
	failures := 0

	for {
		select {
		case <-g.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := g.Connect(ctx)
		cancel()

		if err == nil {
			return
		}
		failures++
		if failures >= resumeFailureLimit {
			g.dropSession()
		}
		g.logger.Warn("gateway reconnect failed",
			slog.String("error", err.Error()),
			slog.Duration("next_delay", delay))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
