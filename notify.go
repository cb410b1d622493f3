package mcloones

import "sync"

// SessionEventType names a change the Manager announces to subscribers.
type SessionEventType uint8

const (
	// SessionStarted fires when an identity becomes the current actor.
	SessionStarted SessionEventType = iota + 1
	// SessionEnded fires when an authenticated session is torn down. Shells
	// react by navigating to the login screen.
	SessionEnded
	// ProfileChanged fires when the profile of the current identity is replaced.
	ProfileChanged
)

func (t SessionEventType) String() string {
	switch t {
	case SessionStarted:
		return "session_started"
	case SessionEnded:
		return "session_ended"
	case ProfileChanged:
		return "profile_changed"
	}
	return "unknown"
}

// EndReason explains a SessionEnded event.
type EndReason string

const (
	// EndReasonLogout is an explicit Logout call.
	EndReasonLogout EndReason = "logout"
	// EndReasonRemoteSignOut is a SIGNED_OUT event the Manager did not ask for,
	// for example a session revoked from another device.
	EndReasonRemoteSignOut EndReason = "remote_sign_out"
	// EndReasonIdentityChanged means a different identity signed in over the
	// current one.
	EndReasonIdentityChanged EndReason = "identity_changed"
)

// SessionEvent is delivered to [SessionSubscription] channels. Session and View
// are the state after the change. For SessionEnded, Previous is the identity
// that was signed in.
type SessionEvent struct {
	Type     SessionEventType
	Reason   EndReason
	Previous *Identity
	Session  Session
	View     AuthorizationView
}

// SessionSubscription is a cancellable handle on the Manager's event stream.
// Delivery is non-blocking; events that do not fit in the buffer are dropped
// and counted.
type SessionSubscription struct {
	ch   chan SessionEvent
	hub  *notifier
	once sync.Once
}

// Events returns the receive channel. It is closed after Cancel or Manager.Close.
func (s *SessionSubscription) Events() <-chan SessionEvent {
	return s.ch
}

// Cancel stops delivery and closes the channel. Safe to call more than once.
func (s *SessionSubscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

type notifier struct {
	mu      sync.Mutex
	subs    map[*SessionSubscription]struct{}
	closed  bool
	onDrop  func()
	defSize int
}

func newNotifier(defaultBuffer int, onDrop func()) *notifier {
	return &notifier{
		subs:    make(map[*SessionSubscription]struct{}),
		onDrop:  onDrop,
		defSize: defaultBuffer,
	}
}

func (n *notifier) subscribe(buffer int) *SessionSubscription {
	if buffer <= 0 {
		buffer = n.defSize
	}
	s := &SessionSubscription{
		ch:  make(chan SessionEvent, buffer),
		hub: n,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(s.ch)
		return s
	}
	n.subs[s] = struct{}{}
	return s
}

func (n *notifier) publish(ev SessionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for s := range n.subs {
		select {
		case s.ch <- ev:
		default:
			if n.onDrop != nil {
				n.onDrop()
			}
		}
	}
}

func (n *notifier) remove(s *SessionSubscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[s]; !ok {
		return
	}
	delete(n.subs, s)
	close(s.ch)
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for s := range n.subs {
		close(s.ch)
	}
	clear(n.subs)
}
