package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind labels a point of interest in a stream's timeline.
type EventKind int

const (
	EventHostKeyAccepted EventKind = iota
	EventNewKeys
	EventKeystrokeSizeIndicator
	EventFirstLoginPrompt
	EventOfferRSAKey
	EventOfferECDSAKey
	EventOfferEd25519Key
	EventOfferUnknownKey
	EventAcceptedKey
	EventRejectedKey
	EventWrongPassword
	EventCorrectPassword
	EventUserAuthSuccess
)

var eventNames = map[EventKind]string{
	EventHostKeyAccepted:        "HostKeyAccepted",
	EventNewKeys:                "NewKeys",
	EventKeystrokeSizeIndicator: "KeystrokeSizeIndicator",
	EventFirstLoginPrompt:       "FirstLoginPrompt",
	EventOfferRSAKey:            "OfferRSAKey",
	EventOfferECDSAKey:          "OfferECDSAKey",
	EventOfferEd25519Key:        "OfferEd25519Key",
	EventOfferUnknownKey:        "OfferUnknownKey",
	EventAcceptedKey:            "AcceptedKey",
	EventRejectedKey:            "RejectedKey",
	EventWrongPassword:          "WrongPassword",
	EventCorrectPassword:        "CorrectPassword",
	EventUserAuthSuccess:        "UserAuthSuccess",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// MarshalJSON encodes the kind by name so exports stay stable across
// reorderings of the constant block.
func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *EventKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for kind, n := range eventNames {
		if n == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", name)
}

// TimelineEvent is a labelled point in the stream, ordered by capture index.
type TimelineEvent struct {
	Index int       `json:"index"`
	Seq   uint32    `json:"tcp_seq"`
	Kind  EventKind `json:"kind"`
}

// KeystrokeType classifies one interactive client packet.
type KeystrokeType int

const (
	KeystrokeRegular KeystrokeType = iota
	KeystrokeDelete
	KeystrokeTab
	KeystrokeEnter
	KeystrokeArrowHorizontal
	KeystrokeArrowVertical
	KeystrokeUnknown
)

var keystrokeNames = map[KeystrokeType]string{
	KeystrokeRegular:         "Keystroke",
	KeystrokeDelete:          "Delete",
	KeystrokeTab:             "Tab",
	KeystrokeEnter:           "Enter",
	KeystrokeArrowHorizontal: "ArrowHorizontal",
	KeystrokeArrowVertical:   "ArrowVertical",
	KeystrokeUnknown:         "Unknown",
}

func (t KeystrokeType) String() string {
	if name, ok := keystrokeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("KeystrokeType(%d)", int(t))
}

func (t KeystrokeType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *KeystrokeType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for typ, n := range keystrokeNames {
		if n == name {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown keystroke type %q", name)
}

// Echo is the server response paired with a keystroke.
type Echo struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// KeystrokeEvent is one client packet classified as interactive input.
type KeystrokeEvent struct {
	Index         int           `json:"index"`
	Seq           uint32        `json:"tcp_seq"`
	Timestamp     time.Time     `json:"timestamp"`
	LatencyMicros int64         `json:"latency_us"`
	Type          KeystrokeType `json:"type"`
	Echo          *Echo         `json:"echo,omitempty"`
}

// KeystrokeSequence groups keystrokes up to and including the Enter that
// terminates them.
type KeystrokeSequence struct {
	Events []KeystrokeEvent `json:"events"`
	// ResponseFootprint sums the server payload bytes sent between the Enter
	// and the next client keystroke.
	ResponseFootprint uint64 `json:"response_footprint"`
	DurationMicros    int64  `json:"duration_us"`
}

// FirstIndex returns the capture index of the sequence head.
func (s *KeystrokeSequence) FirstIndex() int {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[0].Index
}

// LastIndex returns the capture index of the terminating event.
func (s *KeystrokeSequence) LastIndex() int {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].Index
}
