// Package devicelink owns the control channel to one physical fingerprint
// reader's companion process: connection lifecycle, reconnection, and
// request/response correlation over a message-oriented WebSocket.
package devicelink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muscleupgym/gymgate/internal/gymgate/types"
)

var (
	// ErrNotConnected is returned when a command is issued while the
	// transport is down. Commands are never queued.
	ErrNotConnected = errors.New("devicelink: not connected")

	// ErrCallPending enforces the single-outstanding-request-per-kind
	// invariant: replies carry no correlation id, so a second concurrent
	// call expecting the same reply kind would race the first.
	ErrCallPending = errors.New("devicelink: a call with the same reply kind is already pending")

	// ErrCallTimeout is returned when the companion process does not answer
	// within the call timeout. The pending registration is removed; a late
	// reply is dropped.
	ErrCallTimeout = errors.New("devicelink: call timed out")

	// ErrConnectionClosed rejects in-flight calls when the transport drops.
	ErrConnectionClosed = errors.New("devicelink: connection closed")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("devicelink: link closed")
)

// State is the transport state of the link. Whether the companion process
// has a live session to the physical device is tracked separately
// (IsDeviceConnected).
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Conn is the subset of *websocket.Conn the link needs. Tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens the transport. The default dials with gorilla's
// websocket.DefaultDialer.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures a Link.
type Options struct {
	// URL of the companion process, e.g. "ws://localhost:8082".
	URL string

	// AutoReconnect re-dials after an unclean close.
	AutoReconnect bool

	// ReconnectDelay is the flat delay before a reconnect attempt.
	// Defaults to 3s.
	ReconnectDelay time.Duration

	// CallTimeout bounds every request; an unanswered command would
	// otherwise leak its pending registration forever. Defaults to 10s.
	CallTimeout time.Duration

	Dialer Dialer
	Logger *log.Logger
}

// pendingCall is a single-use completion handle. A call may register under
// several reply kinds (success and error); all registrations are removed
// together on first completion.
type pendingCall struct {
	kinds []string
	ch    chan inboundMessage
}

// Link is a long-lived, single-instance-per-device client. All inbound
// messages are processed by one read loop; outbound calls may come from any
// goroutine, with mu serializing access to the pending table.
type Link struct {
	opts Options

	mu             sync.Mutex
	state          State
	deviceLinked   bool
	conn           Conn
	gen            int // session generation; stale read loops are ignored
	pending        map[string]*pendingCall
	subs           map[int]chan Event
	nextSubID      int
	reconnectTimer *time.Timer
	closed         bool
}

func New(opts Options) *Link {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = defaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Link{
		opts:    opts,
		pending: make(map[string]*pendingCall),
		subs:    make(map[int]chan Event),
	}
}

// Connect dials the companion process and starts the read loop. It returns
// once the transport is open; device-level connectivity is reported via
// events and IsDeviceConnected. Calling Connect while already connected or
// connecting is a no-op.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.state != StateDisconnected {
		l.mu.Unlock()
		return nil
	}
	if l.reconnectTimer != nil {
		l.reconnectTimer.Stop()
		l.reconnectTimer = nil
	}
	l.state = StateConnecting
	l.mu.Unlock()

	conn, err := l.opts.Dialer(ctx, l.opts.URL)
	if err != nil {
		l.mu.Lock()
		l.state = StateDisconnected
		l.scheduleReconnectLocked()
		l.mu.Unlock()
		l.emit(Event{Kind: EventError, Message: fmt.Sprintf("dial %s: %v", l.opts.URL, err)})
		return fmt.Errorf("dial %s: %w", l.opts.URL, err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	l.conn = conn
	l.state = StateConnected
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	l.emit(Event{Kind: EventTransportConnected})
	go l.readLoop(conn, gen)
	return nil
}

// Close shuts the link down cleanly: no reconnect is attempted and any
// pending reconnect timer is cancelled.
func (l *Link) Close() error {
	l.mu.Lock()
	l.closed = true
	if l.reconnectTimer != nil {
		l.reconnectTimer.Stop()
		l.reconnectTimer = nil
	}
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) IsConnected() bool {
	return l.State() == StateConnected
}

func (l *Link) IsDeviceConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deviceLinked
}

// ConnectDevice asks the companion process to open its session to the
// physical reader. Resolves with the device descriptor, or the
// server-provided message on a connection error.
func (l *Link) ConnectDevice(ctx context.Context) (types.DeviceInfo, error) {
	msg, err := l.call(ctx, simpleCommand{Action: actionConnectDevice},
		kindDeviceConnected, kindDeviceConnectionError)
	if err != nil {
		return types.DeviceInfo{}, err
	}
	if msg.Type == kindDeviceConnectionError {
		return types.DeviceInfo{}, fmt.Errorf("device connection error: %s", msg.Message)
	}
	if msg.DeviceInfo == nil {
		return types.DeviceInfo{}, nil
	}
	return *msg.DeviceInfo, nil
}

// DisconnectDevice closes the companion process's session to the reader.
func (l *Link) DisconnectDevice(ctx context.Context) error {
	_, err := l.call(ctx, simpleCommand{Action: actionDisconnectDevice}, kindDeviceDisconnected)
	return err
}

// GetDeviceInfo fetches the current device descriptor.
func (l *Link) GetDeviceInfo(ctx context.Context) (types.DeviceInfo, error) {
	msg, err := l.call(ctx, simpleCommand{Action: actionGetDeviceInfo}, kindDeviceInfo)
	if err != nil {
		return types.DeviceInfo{}, err
	}
	if msg.DeviceInfo == nil {
		return types.DeviceInfo{}, nil
	}
	return *msg.DeviceInfo, nil
}

// SyncTemplates fetches one page of the device's template table.
// An empty page is a valid, non-error result.
func (l *Link) SyncTemplates(ctx context.Context, page, pageSize int) (types.SyncResult, error) {
	msg, err := l.call(ctx, syncCommand{Action: actionSyncTemplates, Page: page, PageSize: pageSize},
		kindSyncTemplatesResult)
	if err != nil {
		return types.SyncResult{}, err
	}

	var res types.SyncResult
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			return types.SyncResult{}, fmt.Errorf("decode sync result: %w", err)
		}
	}
	return res, nil
}

// EnrollUser starts an enrollment on the device. Resolves on success,
// rejects with the server message on an enrollment error.
func (l *Link) EnrollUser(ctx context.Context, userID, userName string, fingerIndex int) (types.EnrollResult, error) {
	msg, err := l.call(ctx, enrollCommand{
		Action:      actionEnrollUser,
		UserID:      userID,
		UserName:    userName,
		FingerIndex: fingerIndex,
	}, kindEnrollmentSuccess, kindEnrollmentError)
	if err != nil {
		return types.EnrollResult{}, err
	}
	if msg.Type == kindEnrollmentError {
		return types.EnrollResult{}, fmt.Errorf("enrollment error: %s", msg.Message)
	}

	var res types.EnrollResult
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			return types.EnrollResult{}, fmt.Errorf("decode enroll result: %w", err)
		}
	}
	return res, nil
}

// call sends one command and waits for the first inbound message of any of
// the given reply kinds. Registration is single-use: the entry is removed
// on completion, timeout, cancellation, or transport loss.
func (l *Link) call(ctx context.Context, cmd any, replyKinds ...string) (inboundMessage, error) {
	l.mu.Lock()
	if l.state != StateConnected || l.conn == nil {
		l.mu.Unlock()
		return inboundMessage{}, ErrNotConnected
	}
	for _, k := range replyKinds {
		if _, dup := l.pending[k]; dup {
			l.mu.Unlock()
			return inboundMessage{}, fmt.Errorf("%w: %s", ErrCallPending, k)
		}
	}
	pc := &pendingCall{kinds: replyKinds, ch: make(chan inboundMessage, 1)}
	for _, k := range replyKinds {
		l.pending[k] = pc
	}
	conn := l.conn
	l.mu.Unlock()

	payload, err := json.Marshal(cmd)
	if err != nil {
		l.removePending(pc)
		return inboundMessage{}, fmt.Errorf("encode command: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		l.removePending(pc)
		return inboundMessage{}, fmt.Errorf("send command: %w", err)
	}

	timer := time.NewTimer(l.opts.CallTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-pc.ch:
		if !ok {
			return inboundMessage{}, ErrConnectionClosed
		}
		return msg, nil
	case <-timer.C:
		l.removePending(pc)
		return inboundMessage{}, ErrCallTimeout
	case <-ctx.Done():
		l.removePending(pc)
		return inboundMessage{}, ctx.Err()
	}
}

func (l *Link) removePending(pc *pendingCall) {
	l.mu.Lock()
	for _, k := range pc.kinds {
		if l.pending[k] == pc {
			delete(l.pending, k)
		}
	}
	l.mu.Unlock()
}

// readLoop is the single consumer of inbound messages for one session.
func (l *Link) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.handleDisconnect(gen, err)
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.opts.Logger.Printf("devicelink: bad message: %v", err)
			continue
		}

		l.dispatch(msg)
	}
}

// dispatch updates link state, emits events, and completes the pending
// call registered for the message kind, if any.
func (l *Link) dispatch(msg inboundMessage) {
	switch msg.Type {
	case kindDeviceStatus:
		l.setDeviceLinked(msg.Status == "connected")
		l.emit(Event{Kind: EventDeviceStatus, Status: msg.Status})
	case kindDeviceConnected:
		l.setDeviceLinked(true)
		l.emit(Event{Kind: EventDeviceStatus, Status: "connected"})
	case kindDeviceDisconnected:
		l.setDeviceLinked(false)
		l.emit(Event{Kind: EventDeviceStatus, Status: "disconnected"})
	case kindError:
		l.emit(Event{Kind: EventError, Message: msg.Message})
	}

	l.mu.Lock()
	pc, ok := l.pending[msg.Type]
	if ok {
		for _, k := range pc.kinds {
			if l.pending[k] == pc {
				delete(l.pending, k)
			}
		}
	}
	l.mu.Unlock()

	if ok {
		pc.ch <- msg
	} else if !isEventKind(msg.Type) {
		// A reply kind with no pending call: either a late reply after a
		// timeout, or an unknown kind.
		l.opts.Logger.Printf("devicelink: dropping unsolicited %q message", msg.Type)
	}
}

func isEventKind(kind string) bool {
	switch kind {
	case kindDeviceStatus, kindDeviceConnected, kindDeviceDisconnected, kindError:
		return true
	}
	return false
}

func (l *Link) setDeviceLinked(v bool) {
	l.mu.Lock()
	l.deviceLinked = v
	l.mu.Unlock()
}

// handleDisconnect tears down the session after a read error. Reconnection
// is scheduled only for unclean closes with auto-reconnect enabled.
func (l *Link) handleDisconnect(gen int, cause error) {
	l.mu.Lock()
	if gen != l.gen {
		// A newer session already replaced this one.
		l.mu.Unlock()
		return
	}

	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.state = StateDisconnected
	l.deviceLinked = false

	// Reject all in-flight calls.
	seen := make(map[*pendingCall]struct{}, len(l.pending))
	for _, pc := range l.pending {
		seen[pc] = struct{}{}
	}
	l.pending = make(map[string]*pendingCall)

	clean := l.closed
	if !clean {
		l.scheduleReconnectLocked()
	}
	l.mu.Unlock()

	for pc := range seen {
		close(pc.ch)
	}

	if !clean {
		l.opts.Logger.Printf("devicelink: transport lost: %v", cause)
	}
	l.emit(Event{Kind: EventTransportDisconnected})
}

// scheduleReconnectLocked arms the flat-delay reconnect timer.
// Caller holds l.mu.
func (l *Link) scheduleReconnectLocked() {
	if !l.opts.AutoReconnect || l.closed || l.reconnectTimer != nil {
		return
	}
	l.reconnectTimer = time.AfterFunc(l.opts.ReconnectDelay, func() {
		l.mu.Lock()
		l.reconnectTimer = nil
		l.mu.Unlock()
		if err := l.Connect(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			l.opts.Logger.Printf("devicelink: reconnect failed: %v", err)
		}
	})
}
