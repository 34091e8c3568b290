package core

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := VersionPayload{Address: "10.0.0.1", Port: "6969", Version: "10001"}
	env, err := NewEnvelope(TypeRequest, FlagVersion, payload)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	raw, err := Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != TypeRequest || decoded.Flag != FlagVersion {
		t.Fatalf("unexpected envelope shape: %+v", decoded)
	}
	if decoded.Timestamp != env.Timestamp {
		t.Fatalf("timestamp not preserved: got %q want %q", decoded.Timestamp, env.Timestamp)
	}
	var v VersionPayload
	if err := json.Unmarshal(decoded.Data, &v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if v != payload {
		t.Fatalf("payload mismatch: got %+v want %+v", v, payload)
	}
}

func TestDecodeRejectsUnknownFlag(t *testing.T) {
	raw := []byte(`{"type":"REQUEST","flag":99,"data":{},"timestamp":"2026-01-01T00:00:00Z"}`)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	raw := []byte(`{"type":"BOGUS","flag":0,"data":"PING","timestamp":"2026-01-01T00:00:00Z"}`)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestDecodeRejectsSchemaMismatch(t *testing.T) {
	// VERSION payload missing required fields.
	raw := []byte(`{"type":"REQUEST","flag":1,"data":{"address":"10.0.0.1"},"timestamp":"2026-01-01T00:00:00Z"}`)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected schema validation error")
	}
}

func TestHeartbeatPayloadValidation(t *testing.T) {
	ping, _ := NewEnvelope(TypeRequest, FlagHeartbeat, "PING")
	if _, err := Encode(ping); err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	if err := ValidatePayload(TypeRequest, FlagHeartbeat, ping.Data); err != nil {
		t.Fatalf("validate ping: %v", err)
	}
	bad, _ := NewEnvelope(TypeRequest, FlagHeartbeat, "NOPE")
	if err := ValidatePayload(TypeRequest, FlagHeartbeat, bad.Data); err == nil {
		t.Fatal("expected validation error for bad heartbeat payload")
	}
}
