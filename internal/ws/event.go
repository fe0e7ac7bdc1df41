package ws

import (
	"encoding/json"
	"fmt"

	"github.com/neurobot/backend/internal/features"
)

type EventKind string

const (
	KindWelcome      EventKind = "welcome"
	KindEcho         EventKind = "echo"
	KindEEGProcessed EventKind = "eeg_processed"
)

const welcomeText = "Connected to NeuroBot live feed"

// Event is one outbound frame. The set of implementations is closed: only
// the types in this file satisfy it.
type Event interface {
	Kind() EventKind
	event()
}

type Welcome struct {
	Message string
}

type Echo struct {
	Message string
}

// EEGProcessed announces a newly persisted EEG record. Nil fields are sent
// as JSON null.
type EEGProcessed struct {
	RecordID *int64
	Features *features.Summary
	Mood     *string
}

func (Welcome) Kind() EventKind      { return KindWelcome }
func (Echo) Kind() EventKind         { return KindEcho }
func (EEGProcessed) Kind() EventKind { return KindEEGProcessed }

func (Welcome) event()      {}
func (Echo) event()         {}
func (EEGProcessed) event() {}

// NewWelcome returns the greeting sent to a session once it joins the feed.
func NewWelcome() Welcome {
	return Welcome{Message: welcomeText}
}

// NewEEGProcessed builds the notification for a stored record.
func NewEEGProcessed(id int64, summary features.Summary, mood string) EEGProcessed {
	return EEGProcessed{RecordID: &id, Features: &summary, Mood: &mood}
}

type textFrame struct {
	Type    EventKind `json:"type"`
	Message string    `json:"message"`
}

type eegFrame struct {
	Type     EventKind         `json:"type"`
	RecordID *int64            `json:"record_id"`
	Features *features.Summary `json:"features"`
	Mood     *string           `json:"mood"`
}

// Encode renders ev as the JSON text frame clients receive.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case Welcome:
		return json.Marshal(textFrame{Type: KindWelcome, Message: e.Message})
	case Echo:
		return json.Marshal(textFrame{Type: KindEcho, Message: e.Message})
	case EEGProcessed:
		return json.Marshal(eegFrame{
			Type:     KindEEGProcessed,
			RecordID: e.RecordID,
			Features: e.Features,
			Mood:     e.Mood,
		})
	case nil:
		return nil, fmt.Errorf("encode: nil event")
	default:
		return nil, fmt.Errorf("encode: unsupported event %T", ev)
	}
}
