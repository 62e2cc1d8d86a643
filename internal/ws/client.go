package ws

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaykit/relay/internal/broker"
)

const (
	// writeWait is the maximum time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// heartbeatPeriod is the liveness probe interval. A session that does
	// not answer a ping within one full interval is terminated.
	heartbeatPeriod = 30 * time.Second
	// maxMessageSize is the maximum inbound frame size in bytes.
	maxMessageSize = 64 * 1024
	// sendBuffer is the transport buffer between the outbound queues and
	// the connection. Frames beyond it stay queued in the subscriber record.
	sendBuffer = 64
)

// Session states: CONNECTING -> OPEN -> CLOSING -> CLOSED.
const (
	stateConnecting int32 = iota
	stateOpen
	stateClosing
	stateClosed
)

type kickMsg struct {
	code   int
	reason string
}

// Client is the session controller for one WebSocket connection: it parses
// inbound frames, drives the per-client request/reply state machine, and
// invokes registry operations. It also implements broker.Transport, the
// non-blocking handle the registry delivers frames through.
type Client struct {
	// ID is the server-assigned session identity sent in the welcome frame.
	ID string

	conn *websocket.Conn
	reg  *broker.Registry

	send  chan []byte
	kick  chan kickMsg
	alive atomic.Bool
	state atomic.Int32

	subMu sync.Mutex
	subs  map[string]*broker.Subscriber // client_id -> record, for drain refills

	closeOnce sync.Once
	done      chan struct{}

	onClose func(*Client) // set by the Handler to drop session tracking
}

// NewClient wraps an upgraded connection in a session controller.
func NewClient(reg *broker.Registry, conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.New().String(),
		conn: conn,
		reg:  reg,
		send: make(chan []byte, sendBuffer),
		kick: make(chan kickMsg, 1),
		subs: make(map[string]*broker.Subscriber),
		done: make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// Start queues the welcome frame and spawns the read and write pumps. The
// session moves CONNECTING -> OPEN once the welcome frame is on the wire
// path.
func (c *Client) Start() {
	c.send <- broker.InfoFrame(broker.InfoConnected, c.ID, "")
	c.state.Store(stateOpen)

	go c.writePump()
	go c.readPump()
}

// Done is closed when the session reaches CLOSED.
func (c *Client) Done() <-chan struct{} { return c.done }

// TrySend implements broker.Transport. It never blocks: a full transport
// buffer reports ErrTransportBusy and the frame stays in the outbound queue.
func (c *Client) TrySend(frame []byte) error {
	if c.state.Load() >= stateClosing {
		return broker.ErrTransportClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return broker.ErrTransportBusy
	}
}

// Open implements broker.Transport.
func (c *Client) Open() bool {
	return c.state.Load() <= stateOpen
}

// Kick implements broker.Transport: it asks the write pump to flush what it
// can and close the connection with the given code. Only the first kick per
// session takes effect.
func (c *Client) Kick(code int, reason string) {
	select {
	case c.kick <- kickMsg{code: code, reason: reason}:
	default:
	}
}

// readPump reads frames from the connection until it fails, validating and
// dispatching each one. It runs in its own goroutine per session.
func (c *Client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: session %s read error: %v", c.ID, err)
			}
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame validates one inbound frame and invokes the matching registry
// operation. Validation failures are reported to this client only and touch
// no registry state.
func (c *Client) handleFrame(data []byte) {
	f, ferr := parseFrame(data)
	if ferr != nil {
		c.reply(broker.ErrorFrame(ferr.requestID, ferr.code, ferr.message))
		return
	}

	switch f.Type {
	case "subscribe":
		sub, err := c.reg.Subscribe(f.ClientID, c, f.Topic, f.lastN)
		if err != nil {
			c.replyErr(f, err)
			return
		}
		c.subMu.Lock()
		c.subs[f.ClientID] = sub
		c.subMu.Unlock()
		c.reply(broker.AckFrame(f.requestID(), f.Topic))

	case "unsubscribe":
		if err := c.reg.Unsubscribe(f.ClientID, f.Topic); err != nil {
			c.replyErr(f, err)
			return
		}
		c.reply(broker.AckFrame(f.requestID(), f.Topic))

	case "publish":
		res, err := c.reg.Publish(f.Topic, f.message)
		if err != nil {
			c.replyErr(f, err)
			return
		}
		if len(res.Failed) > 0 {
			log.Printf("ws: publish to %q reached %d subscribers, %d failed", f.Topic, res.SubscribersReached, len(res.Failed))
		}
		c.reply(broker.AckFrame(f.requestID(), f.Topic))

	case "ping":
		c.reply(broker.PongFrame(f.requestID()))
	}
}

// replyErr maps a registry failure to a wire error code.
func (c *Client) replyErr(f *inboundFrame, err error) {
	code := broker.CodeInternalError
	msg := "internal error"
	switch {
	case errors.Is(err, broker.ErrTopicNotFound), errors.Is(err, broker.ErrNotSubscribed):
		// The session boundary does not distinguish a missing topic from a
		// never-joined one.
		code = broker.CodeTopicNotFound
		msg = "topic not found: " + f.Topic
	case errors.Is(err, broker.ErrClosed):
		msg = "server shutting down"
	}
	c.reply(broker.ErrorFrame(f.requestID(), code, msg))
}

// reply queues a control reply (ack, error, pong) for this session. Replies
// compete with event delivery for the transport buffer; when it is full the
// reply is dropped rather than blocking the read pump.
func (c *Client) reply(frame []byte) {
	if err := c.TrySend(frame); err != nil {
		log.Printf("ws: session %s dropped reply: %v", c.ID, err)
	}
}

// writePump owns all writes to the connection: queued frames, heartbeat
// pings, and the closing handshake. It runs in its own goroutine per
// session.
func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			// The buffer has room again; pull more from the outbound
			// queues of every identity on this session.
			c.drainSubscribers()

		case k := <-c.kick:
			c.closeWith(k.code, k.reason)
			return

		case <-ticker.C:
			if !c.alive.Load() {
				log.Printf("ws: session %s missed heartbeat, terminating", c.ID)
				return
			}
			c.alive.Store(false)
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) drainSubscribers() {
	c.subMu.Lock()
	subs := make([]*broker.Subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subMu.Unlock()

	for _, s := range subs {
		s.Drain()
	}
}

// closeWith flushes the frames already buffered, then performs the closing
// handshake with the given code.
func (c *Client) closeWith(code int, reason string) {
	c.state.Store(stateClosing)

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			deadline := time.Now().Add(writeWait)
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline) //nolint:errcheck // best effort
			return
		}
	}
}

// shutdown drives the session to CLOSED exactly once: registry cleanup for
// every identity bound to this transport, then the connection release.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosing)
		c.reg.ReleaseTransport(c)
		c.conn.Close()
		c.state.Store(stateClosed)
		close(c.done)
		if c.onClose != nil {
			c.onClose(c)
		}
		log.Printf("ws: session %s closed", c.ID)
	})
}
