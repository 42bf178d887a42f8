package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// SchemaVersion is the envelope layout written by this package. Consumers
// compare it against the schema_version header before decoding the body.
const SchemaVersion = 2

// Subject names the record an event is about.
type Subject struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (s Subject) String() string { return s.Type + ":" + s.ID }

// Event is the envelope every published message uses.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	SchemaVersion int             `json:"schema_version"`
	Subject       Subject         `json:"subject"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Source        string          `json:"source"`
	Actor         string          `json:"actor,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent marshals data into a fresh envelope with a random id and the
// current UTC time.
func NewEvent(source, eventType string, subject Subject, data any) (*Event, error) {
	if subject.Type == "" || subject.ID == "" {
		return nil, fmt.Errorf("%s event: subject type and id are required", eventType)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SchemaVersion: SchemaVersion,
		Subject:       subject,
		OccurredAt:    time.Now().UTC(),
		Source:        source,
		Data:          payload,
	}, nil
}

// WithCorrelationID sets the request correlation id.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithActor records the user who triggered the event when it differs from
// the subject, e.g. an admin changing someone else's role.
func (e *Event) WithActor(userID string) *Event {
	e.Actor = userID
	return e
}

// Key is the partition key. Events about the same subject land on the same
// partition and keep their order.
func (e *Event) Key() []byte {
	return []byte(e.Subject.String())
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Event) headers() []kafka.Header {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.Type)},
		{Key: "schema_version", Value: []byte(strconv.Itoa(e.SchemaVersion))},
		{Key: "source", Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	if e.Actor != "" {
		headers = append(headers, kafka.Header{Key: "actor", Value: []byte(e.Actor)})
	}
	return headers
}
