package codec

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

func TestEncodeDecodeTurn(t *testing.T) {
	turn := inquiry.Turn{
		ID:        "turn-1",
		Utterance: "cheapest flights from SFO to JFK",
		Classification: inquiry.FlightAnalytics{
			Origin:      "SFO",
			Destination: "JFK",
			Modifier:    inquiry.ModifierCheapest,
		},
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	b, err := EncodeTurn(turn)
	if err != nil {
		t.Fatalf("Failed to encode turn: %v", err)
	}

	decoded, err := DecodeTurn(b)
	if err != nil {
		t.Fatalf("Failed to decode turn: %v", err)
	}

	if decoded.ID != turn.ID || decoded.Utterance != turn.Utterance {
		t.Errorf("Expected %+v, got %+v", turn, decoded)
	}
	if decoded.Classification != turn.Classification {
		t.Errorf("Expected classification %+v, got %+v", turn.Classification, decoded.Classification)
	}
	if !decoded.Timestamp.Equal(turn.Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", turn.Timestamp, decoded.Timestamp)
	}
}

func TestDecodeClassification_RejectsUnknownKind(t *testing.T) {
	_, err := DecodeClassification(ClassificationData{Kind: "hotel_booking"})
	if err == nil {
		t.Fatal("Expected error for unknown kind")
	}
}

func TestDecodeClassification_RejectsInvalidPayload(t *testing.T) {
	_, err := DecodeClassification(ClassificationData{Kind: "flight_analytics", Origin: "SF"})
	if err == nil {
		t.Fatal("Expected error for two-letter airport code")
	}
}

func TestNewQueryResponse(t *testing.T) {
	resp := NewQueryResponse("ok", inquiry.FlightStatus{FlightNumber: "AA123"}, "s1")
	if resp.IntentType != "flight_status" {
		t.Errorf("Expected intent 'flight_status', got '%s'", resp.IntentType)
	}
	if resp.FlightNumber == nil || *resp.FlightNumber != "AA123" {
		t.Errorf("Expected flight number AA123, got %v", resp.FlightNumber)
	}
	if resp.Origin != nil || resp.Destination != nil {
		t.Error("Expected null origin and destination for a status reply")
	}

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if !strings.Contains(string(b), `"origin":null`) {
		t.Errorf("Expected explicit null origin, got %s", b)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := CreateRequestEnvelope(QueryRequest{Query: "status of UA100"})
	if err != nil {
		t.Fatalf("Failed to create envelope: %v", err)
	}

	b, err := EncodeBytes(env)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	decoded, err := DecodeBytes(b)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if decoded.Type != TypeRequest || decoded.ID != env.ID {
		t.Errorf("Envelope mismatch: %+v", decoded)
	}

	var req QueryRequest
	if err := json.Unmarshal(decoded.Payload, &req); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if req.Query != "status of UA100" {
		t.Errorf("Expected query to survive, got %q", req.Query)
	}
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"missing version", Envelope{Type: TypeRequest, ID: "1", Payload: json.RawMessage(`{}`)}},
		{"wrong version", Envelope{Version: "9.9", Type: TypeRequest, ID: "1", Payload: json.RawMessage(`{}`)}},
		{"bad type", Envelope{Version: ProtocolVersion, Type: "heartbeat", ID: "1", Payload: json.RawMessage(`{}`)}},
		{"missing id", Envelope{Version: ProtocolVersion, Type: TypeRequest, Payload: json.RawMessage(`{}`)}},
		{"missing payload", Envelope{Version: ProtocolVersion, Type: TypeRequest, ID: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := tt.env
			if err := ValidateEnvelope(&env); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
