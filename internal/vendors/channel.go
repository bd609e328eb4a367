package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	verrors "github.com/triarom/voip-phonebook-go/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// Connection is one attached vendor channel and its protocol state. It owns
// the read/write pumps, the pending-acknowledgement table and the
// provisioning deadline timer.
type Connection struct {
	ID          string
	ServiceName string

	conn   *websocket.Conn
	send   chan []byte
	logger zerolog.Logger

	mu              sync.RWMutex
	state           ConnectionState
	declaredVersion string
	provisionTimer  *time.Timer

	seq       atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan json.RawMessage

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(conn *websocket.Conn, serviceName string, logger zerolog.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		ID:          id,
		ServiceName: serviceName,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		logger:      logger.With().Str("connection", id).Str("service", serviceName).Logger(),
		state:       StateWaitingForProvision,
		pending:     make(map[uint64]chan json.RawMessage),
		closed:      make(chan struct{}),
	}
}

// State returns the connection's current provisioning state.
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// DeclaredVersion returns the manifest version the vendor negotiated with.
func (c *Connection) DeclaredVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.declaredVersion
}

func (c *Connection) setState(to ConnectionState) (from ConnectionState) {
	c.mu.Lock()
	from = c.state
	c.state = to
	// The provisioning deadline only guards waiting_for_provision. Any
	// transition out disarms it so it can never fire against a reused
	// identity.
	if from == StateWaitingForProvision && c.provisionTimer != nil {
		c.provisionTimer.Stop()
		c.provisionTimer = nil
	}
	c.mu.Unlock()
	return from
}

// transitionFrom moves to a new state only when the connection is still in
// the expected one. Used by the provisioning deadline so it cannot clobber
// a later transition.
func (c *Connection) transitionFrom(expect, to ConnectionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != expect {
		return false
	}
	c.state = to
	if expect == StateWaitingForProvision && c.provisionTimer != nil {
		c.provisionTimer.Stop()
		c.provisionTimer = nil
	}
	return true
}

func (c *Connection) setDeclaredVersion(version string) {
	c.mu.Lock()
	c.declaredVersion = version
	c.mu.Unlock()
}

// armProvisionTimer schedules fire after d unless the connection has left
// waiting_for_provision by then.
func (c *Connection) armProvisionTimer(d time.Duration, fire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provisionTimer = time.AfterFunc(d, fire)
}

// Emit sends a fire-and-forget event to the vendor.
func (c *Connection) Emit(event string, data any) error {
	raw, err := encodeEnvelope(event, 0, 0, data)
	if err != nil {
		return err
	}
	return c.enqueue(raw)
}

// reply answers a vendor-initiated request identified by seq.
func (c *Connection) reply(event string, seq uint64, data any) error {
	raw, err := encodeEnvelope(event, 0, seq, data)
	if err != nil {
		return err
	}
	return c.enqueue(raw)
}

// Request sends an event that expects an acknowledgement and waits for it
// with a bounded timeout. The three-way outcome is explicit: the ack
// payload, verrors.ErrAckTimeout, or a connection error.
func (c *Connection) Request(ctx context.Context, event string, data any, timeout time.Duration) (json.RawMessage, error) {
	seq := c.seq.Add(1)
	ackCh := make(chan json.RawMessage, 1)

	c.pendingMu.Lock()
	c.pending[seq] = ackCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
	}()

	raw, err := encodeEnvelope(event, seq, 0, data)
	if err != nil {
		return nil, err
	}
	if err := c.enqueue(raw); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ackCh:
		return payload, nil
	case <-timer.C:
		return nil, verrors.ErrAckTimeout
	case <-c.closed:
		return nil, verrors.ErrNotConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Connection) resolveAck(seq uint64, payload json.RawMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[seq]
	delete(c.pending, seq)
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug().Uint64("seq", seq).Msg("Acknowledgement for unknown request, dropping")
		return
	}
	ch <- payload
}

func (c *Connection) enqueue(raw []byte) error {
	select {
	case <-c.closed:
		return verrors.ErrNotConnected
	default:
	}
	select {
	case c.send <- raw:
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", c.ID)
	}
}

// Close tears the channel down. Safe to call multiple times.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.provisionTimer != nil {
			c.provisionTimer.Stop()
			c.provisionTimer = nil
		}
		c.mu.Unlock()

		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
		c.logger.Debug().Str("reason", reason).Msg("Vendor channel closed")
	})
}

// readPump delivers inbound envelopes. Acknowledgements resolve pending
// requests; everything else goes to handle. Blocks until the connection
// drops, then runs onClose.
func (c *Connection) readPump(handle func(*Connection, Envelope), onClose func(*Connection)) {
	defer func() {
		c.Close("read loop ended")
		onClose(c)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("Vendor channel read error")
			} else {
				c.logger.Debug().Err(err).Msg("Vendor channel closed by peer")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed vendor message, dropping")
			continue
		}

		if env.Ack != 0 {
			c.resolveAck(env.Ack, env.Data)
			continue
		}
		handle(c, env)
	}
}

// writePump flushes the send queue and keeps the connection alive with
// pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close("write loop ended")
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("Vendor channel write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
