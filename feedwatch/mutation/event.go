package mutation

import "encoding/json"

// Kind is the type of pipeline event.
type Kind string

const (
	KindActivated   Kind = "activated"
	KindDeactivated Kind = "deactivated"
	KindRemoved     Kind = "removed" // pre-existing excluded item taken out of the page
	KindHidden      Kind = "hidden"  // streamed excluded item, display suppressed
	KindUnknown     Kind = "unknown" // no rule matched, item left visible
)

// Event is emitted by the pipeline for every action it takes.
type Event struct {
	ID           string   `json:"id"`            // UUIDv7
	ActivationID string   `json:"activation_id"` // groups events of one active period
	Kind         Kind     `json:"kind"`
	URN          string   `json:"urn,omitempty"`
	Category     string   `json:"category,omitempty"`
	HTML         string   `json:"html,omitempty"` // set for unknown items only
	Excluded     []string `json:"excluded,omitempty"`
	Timestamp    int64    `json:"timestamp"` // epoch milliseconds
}

// MarshalEvent serialises an Event to JSON.
func MarshalEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserialises an Event from JSON.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UnmarshalRecords decodes the JSON array posted by the page observer.
func UnmarshalRecords(data []byte) ([]Record, error) {
	var rs []Record
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}
