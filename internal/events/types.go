// Package events defines the event types carried by the realmlink event bus.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Subsystem events
	EventRecordDecoded       EventType = "record_decoded"
	EventMirrorChanged       EventType = "mirror_changed"
	EventCorrelationTimedOut EventType = "correlation_timed_out"

	// Connection events
	EventConnectionEstablished EventType = "connection_established"
	EventConnectionLost        EventType = "connection_lost"
	EventLatencyHigh           EventType = "latency_high"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// ConnectionState is the state of the realm connection.
type ConnectionState int

const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionStopped
)

// connectionStateStrings maps ConnectionState values to their JSON string representation.
var connectionStateStrings = map[ConnectionState]string{
	ConnectionDisconnected: "disconnected",
	ConnectionConnecting:   "connecting",
	ConnectionConnected:    "connected",
	ConnectionStopped:      "stopped",
}

// String returns the string representation of ConnectionState.
func (s ConnectionState) String() string {
	if str, ok := connectionStateStrings[s]; ok {
		return str
	}
	return "disconnected"
}

// MarshalJSON serializes ConnectionState as a JSON string (e.g. "connected").
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// RecordPayload carries one decoded record from a facade.
type RecordPayload struct {
	Subsystem string      `json:"subsystem"`
	Opcode    string      `json:"opcode"`
	Record    interface{} `json:"record"`
	At        time.Time   `json:"at"`
}

// MirrorPayload carries a facade's mirror right after it changed.
type MirrorPayload struct {
	Subsystem string      `json:"subsystem"`
	Snapshot  interface{} `json:"snapshot"`
	At        time.Time   `json:"at"`
}

// ConnectionPayload describes a connection state transition.
type ConnectionPayload struct {
	Address string          `json:"address"`
	State   ConnectionState `json:"state"`
	Reason  string          `json:"reason,omitempty"`
	At      time.Time       `json:"at"`
}

// CorrelationPayload describes a correlated wait that ran out.
type CorrelationPayload struct {
	Operation string        `json:"operation"`
	Waited    time.Duration `json:"waited"`
}

// LatencyPayload is emitted when a ping round trip exceeds its threshold.
type LatencyPayload struct {
	RTT       time.Duration `json:"rtt"`
	Threshold time.Duration `json:"threshold"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
