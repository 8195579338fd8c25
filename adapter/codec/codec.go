// Package codec provides the wire forms of turns, classifications and the
// query protocol shared by the HTTP, WebSocket and storage layers.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scttfrdmn/travelrouter/inquiry"
)

const ProtocolVersion = "1.0"

// Envelope types
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeError    = "error"
)

// Envelope frames a WebSocket message.
type Envelope struct {
	Version   string          `json:"version"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// QueryRequest is the body of POST /query and of a WebSocket request envelope.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// QueryResponse is the reply to a QueryRequest.
type QueryResponse struct {
	Response     string  `json:"response"`
	IntentType   string  `json:"intent_type,omitempty"`
	FlightNumber *string `json:"flight_number"`
	Origin       *string `json:"origin"`
	Destination  *string `json:"destination"`
	SessionID    string  `json:"session_id"`
	Path         string  `json:"path,omitempty"`
	Rule         string  `json:"rule,omitempty"`
}

// ErrorPayload is carried by an error envelope.
type ErrorPayload struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

// ClassificationData is the tagged JSON form of a Classification.
type ClassificationData struct {
	Kind         string `json:"kind"`
	FlightNumber string `json:"flight_number,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Modifier     string `json:"intent_modifier,omitempty"`
	Year         int    `json:"year,omitempty"`
}

// TurnData is the stored form of a Turn.
type TurnData struct {
	ID             string             `json:"id"`
	Utterance      string             `json:"utterance"`
	Classification ClassificationData `json:"classification"`
	Timestamp      string             `json:"timestamp"`
}

// EncodeClassification converts a Classification to its tagged form.
func EncodeClassification(c inquiry.Classification) ClassificationData {
	switch v := c.(type) {
	case inquiry.FlightStatus:
		return ClassificationData{Kind: string(inquiry.KindFlightStatus), FlightNumber: v.FlightNumber}
	case inquiry.FlightAnalytics:
		return ClassificationData{
			Kind:        string(inquiry.KindFlightAnalytics),
			Origin:      v.Origin,
			Destination: v.Destination,
			Modifier:    string(v.Modifier),
			Year:        v.Year,
		}
	default:
		return ClassificationData{Kind: string(inquiry.KindUnknown)}
	}
}

// DecodeClassification converts tagged data back to a Classification.
// Unknown tags and payloads that fail validation are errors.
func DecodeClassification(data ClassificationData) (inquiry.Classification, error) {
	var c inquiry.Classification
	switch inquiry.Kind(data.Kind) {
	case inquiry.KindFlightStatus:
		c = inquiry.FlightStatus{FlightNumber: data.FlightNumber}
	case inquiry.KindFlightAnalytics:
		c = inquiry.FlightAnalytics{
			Origin:      data.Origin,
			Destination: data.Destination,
			Modifier:    inquiry.IntentModifier(data.Modifier),
			Year:        data.Year,
		}
	case inquiry.KindUnknown:
		c = inquiry.Unknown{}
	default:
		return nil, fmt.Errorf("unknown classification kind %q", data.Kind)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// EncodeTurn serializes a turn for durable storage.
func EncodeTurn(turn inquiry.Turn) ([]byte, error) {
	data := TurnData{
		ID:             turn.ID,
		Utterance:      turn.Utterance,
		Classification: EncodeClassification(turn.Classification),
		Timestamp:      turn.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode turn: %w", err)
	}
	return b, nil
}

// DecodeTurn deserializes a stored turn.
func DecodeTurn(b []byte) (inquiry.Turn, error) {
	var data TurnData
	if err := json.Unmarshal(b, &data); err != nil {
		return inquiry.Turn{}, fmt.Errorf("failed to decode turn: %w", err)
	}
	c, err := DecodeClassification(data.Classification)
	if err != nil {
		return inquiry.Turn{}, fmt.Errorf("failed to decode turn %s: %w", data.ID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, data.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	return inquiry.Turn{
		ID:             data.ID,
		Utterance:      data.Utterance,
		Classification: c,
		Timestamp:      ts,
	}, nil
}

// NewQueryResponse fills the entity fields of a response from the resolved
// classification. Fields that do not apply are null.
func NewQueryResponse(reply string, c inquiry.Classification, sessionID string) QueryResponse {
	resp := QueryResponse{Response: reply, SessionID: sessionID}
	if c == nil {
		return resp
	}
	resp.IntentType = string(c.Kind())
	switch v := c.(type) {
	case inquiry.FlightStatus:
		resp.FlightNumber = optional(v.FlightNumber)
	case inquiry.FlightAnalytics:
		resp.Origin = optional(v.Origin)
		resp.Destination = optional(v.Destination)
	}
	return resp
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateRequestEnvelope wraps a query for the WebSocket protocol.
func CreateRequestEnvelope(req QueryRequest) (*Envelope, error) {
	return newEnvelope(TypeRequest, uuid.New().String(), req)
}

// CreateResponseEnvelope wraps a response for the given request ID.
func CreateResponseEnvelope(requestID string, resp QueryResponse) (*Envelope, error) {
	return newEnvelope(TypeResponse, requestID, resp)
}

// CreateErrorEnvelope wraps a protocol error for the given request ID.
func CreateErrorEnvelope(requestID, code, message string) (*Envelope, error) {
	return newEnvelope(TypeError, requestID, ErrorPayload{Code: code, Message: message})
}

func newEnvelope(typ, id string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return &Envelope{
		Version:   ProtocolVersion,
		Type:      typ,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   raw,
	}, nil
}

// ValidateEnvelope validates a protocol envelope.
func ValidateEnvelope(env *Envelope) error {
	if env.Version == "" {
		return fmt.Errorf("missing 'version' field in envelope")
	}
	if env.Version != ProtocolVersion {
		return fmt.Errorf("unsupported protocol version: %s", env.Version)
	}
	switch env.Type {
	case TypeRequest, TypeResponse, TypeError:
	case "":
		return fmt.Errorf("missing 'type' field in envelope")
	default:
		return fmt.Errorf("invalid message type: %s", env.Type)
	}
	if env.ID == "" {
		return fmt.Errorf("missing 'id' field in envelope")
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("missing 'payload' field in envelope")
	}
	return nil
}

// EncodeBytes encodes an envelope to bytes for transmission.
func EncodeBytes(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeBytes decodes and validates an envelope.
func DecodeBytes(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if err := ValidateEnvelope(&env); err != nil {
		return nil, err
	}
	return &env, nil
}
