package devicelink

// EventKind classifies link events.
type EventKind int

const (
	// EventTransportConnected fires when the WebSocket transport opens.
	EventTransportConnected EventKind = iota

	// EventTransportDisconnected fires when the transport closes,
	// cleanly or not.
	EventTransportDisconnected

	// EventDeviceStatus fires when the companion process reports a change
	// in the physical device's status. Status carries the raw string.
	EventDeviceStatus

	// EventError fires for transport and companion-process errors that are
	// not tied to an in-flight request. Connectivity state is unchanged.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTransportConnected:
		return "transport_connected"
	case EventTransportDisconnected:
		return "transport_disconnected"
	case EventDeviceStatus:
		return "device_status"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to every subscriber. Status is set for
// EventDeviceStatus; Message for EventError.
type Event struct {
	Kind    EventKind
	Status  string
	Message string
}

// Subscribe registers an event channel with the given buffer size and
// returns it with a cancel function. Delivery is non-blocking: a subscriber
// that falls behind misses events rather than stalling the read loop.
func (l *Link) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	l.mu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
	return ch, cancel
}

// emit fans the event out to all subscribers. Must not be called with
// l.mu held by the emitting path in a way that could re-enter.
func (l *Link) emit(ev Event) {
	l.mu.Lock()
	chans := make([]chan Event, 0, len(l.subs))
	for _, ch := range l.subs {
		chans = append(chans, ch)
	}
	l.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}
