package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType distinguishes a request from its response.
type MessageType string

const (
	TypeRequest  MessageType = "REQUEST"
	TypeResponse MessageType = "RESPONSE"
)

// Flag selects the handler a message is routed to.
type Flag int

const (
	FlagHeartbeat Flag = iota
	FlagVersion
	FlagTransaction
	FlagAddress
	FlagBlock
	FlagCampaign
	FlagQuery
)

func (f Flag) String() string {
	switch f {
	case FlagHeartbeat:
		return "HEARTBEAT"
	case FlagVersion:
		return "VERSION"
	case FlagTransaction:
		return "TRANSACTION"
	case FlagAddress:
		return "ADDRESS"
	case FlagBlock:
		return "BLOCK"
	case FlagCampaign:
		return "CAMPAIGN"
	case FlagQuery:
		return "QUERY"
	default:
		return fmt.Sprintf("FLAG(%d)", int(f))
	}
}

func validFlag(f Flag) bool { return f >= FlagHeartbeat && f <= FlagQuery }

// Envelope is the wire-level textual object every message is encoded to.
// Encoding never performs I/O; it is purely a transform between an
// in-memory Envelope and its byte representation.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Flag      Flag            `json:"flag"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// NewEnvelope builds an Envelope from an arbitrary payload value, stamping
// the current time in ISO-8601 form.
func NewEnvelope(typ MessageType, flag Flag, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal payload: %w", err)
	}
	return &Envelope{
		Type:      typ,
		Flag:      flag,
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Encode serializes the envelope to its wire form.
func Encode(e *Envelope) ([]byte, error) {
	if e.Type != TypeRequest && e.Type != TypeResponse {
		return nil, fmt.Errorf("wire: invalid type %q", e.Type)
	}
	if !validFlag(e.Flag) {
		return nil, fmt.Errorf("wire: invalid flag %d", e.Flag)
	}
	return json.Marshal(e)
}

// Decode parses the wire form into an Envelope and rejects anything that
// does not match the expected shape: unknown type, unknown flag, or a
// payload that fails schema validation for (type, flag).
func Decode(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if e.Type != TypeRequest && e.Type != TypeResponse {
		return nil, fmt.Errorf("wire: unknown type %q", e.Type)
	}
	if !validFlag(e.Flag) {
		return nil, fmt.Errorf("wire: unknown flag %d", e.Flag)
	}
	if err := ValidatePayload(e.Type, e.Flag, e.Data); err != nil {
		return nil, fmt.Errorf("wire: payload schema: %w", err)
	}
	return &e, nil
}

// ---------------------------------------------------------------------
// Payload schemas
// ---------------------------------------------------------------------

type VersionPayload struct {
	Address string `json:"address"`
	Port    string `json:"port"`
	Version string `json:"version"`
}

type TransactionPayload struct {
	Nonce    uint64 `json:"nonce"`
	GasPrice uint64 `json:"gas_price"`
	Gas      uint64 `json:"gas"`
	To       string `json:"to"`
	Value    uint64 `json:"value"`
	Data     string `json:"data"`
	V        uint64 `json:"v"`
	R        string `json:"r"`
	S        string `json:"s"`
}

type AddressEntry struct {
	Address string `json:"address"`
	Port    string `json:"port"`
}

type AddressResponsePayload struct {
	Peers []AddressEntry `json:"peers"`
}

type BlockRequestPayload struct {
	BestBlock uint64 `json:"best_block"`
}

type BlockResponsePayload struct {
	Blocks []HeaderJSON `json:"blocks"`
}

type CampaignEntry struct {
	Address  string `json:"address"`
	Campaign string `json:"campaign"`
}

// CampaignPayload maps a decimal block number to a campaign entry.
type CampaignPayload map[string]CampaignEntry

type QueryRequestPayload struct {
	BlockNumber uint64 `json:"block_number"`
}

type QueryResponsePayload struct {
	BlockHash string `json:"block_hash"`
}

// ValidatePayload checks that raw unmarshals into the schema prescribed
// for (typ, flag). An empty ADDRESS request carries no required fields
// and always validates.
func ValidatePayload(typ MessageType, flag Flag, raw json.RawMessage) error {
	switch flag {
	case FlagHeartbeat:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if typ == TypeRequest && s != "PING" {
			return fmt.Errorf("heartbeat request must be \"PING\", got %q", s)
		}
		if typ == TypeResponse && s != "PONG" {
			return fmt.Errorf("heartbeat response must be \"PONG\", got %q", s)
		}
		return nil
	case FlagVersion:
		var v VersionPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v.Address == "" || v.Port == "" || v.Version == "" {
			return fmt.Errorf("version payload missing required field")
		}
		return nil
	case FlagTransaction:
		if typ != TypeRequest {
			return fmt.Errorf("transaction is request-only")
		}
		var t TransactionPayload
		return json.Unmarshal(raw, &t)
	case FlagAddress:
		if typ == TypeRequest {
			return nil
		}
		var a AddressResponsePayload
		return json.Unmarshal(raw, &a)
	case FlagBlock:
		if typ == TypeRequest {
			var b BlockRequestPayload
			return json.Unmarshal(raw, &b)
		}
		var b BlockResponsePayload
		return json.Unmarshal(raw, &b)
	case FlagCampaign:
		if typ != TypeRequest {
			return fmt.Errorf("campaign is request-only")
		}
		var c CampaignPayload
		return json.Unmarshal(raw, &c)
	case FlagQuery:
		if typ == TypeRequest {
			var q QueryRequestPayload
			return json.Unmarshal(raw, &q)
		}
		var q QueryResponsePayload
		return json.Unmarshal(raw, &q)
	default:
		return fmt.Errorf("unhandled flag %d", flag)
	}
}
