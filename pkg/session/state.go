package session

// State is the controller lifecycle state.
type State string

const (
	StateIdle        State = "IDLE"
	StateConnecting  State = "CONNECTING"
	StateListening   State = "LISTENING"
	StateResponding  State = "RESPONDING"
	StateWindingDown State = "WINDING_DOWN"
)

// States lists every state, in lifecycle order.
func States() []State {
	return []State{StateIdle, StateConnecting, StateListening, StateResponding, StateWindingDown}
}

func stateNames() []string {
	states := States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}

// Live reports whether a transport is open in this state.
func (s State) Live() bool {
	return s == StateListening || s == StateResponding || s == StateWindingDown
}

// StatusCode identifies a user-facing condition.
type StatusCode string

const (
	StatusNone           StatusCode = ""
	StatusAuthRequired   StatusCode = "AUTH_REQUIRED"
	StatusTransportError StatusCode = "TRANSPORT_ERROR"
	StatusDeviceError    StatusCode = "DEVICE_ERROR"
	StatusReconnecting   StatusCode = "RECONNECTING"
	StatusLinkUnstable   StatusCode = "LINK_UNSTABLE"
)

// Status is presented to observers. Persistent statuses stay until
// dismissed or resolved; transient ones are replaced by the next event.
type Status struct {
	Code       StatusCode `json:"code"`
	Message    string     `json:"message,omitempty"`
	Persistent bool       `json:"persistent"`
}

// IsZero reports whether no status is shown.
func (s Status) IsZero() bool {
	return s.Code == StatusNone
}
