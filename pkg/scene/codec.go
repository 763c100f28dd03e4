package scene

import (
	"encoding/json"
	"fmt"
)

// Command type tags on the broadcast wire.
const (
	TypeAdd        = "add"
	TypeUpdate     = "update"
	TypeRemove     = "remove"
	TypeReplaceAll = "replace_all"
	TypeClearAll   = "clear_all"
)

// Envelope is the broadcast wire format: a command tag plus that variant's
// payload. Receivers ignore envelopes with tags they do not know.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type addPayload struct {
	Element Element `json:"element"`
}

type updatePayload struct {
	ID    string `json:"id"`
	Patch Patch  `json:"patch"`
}

type removePayload struct {
	ID string `json:"id"`
}

type replaceAllPayload struct {
	Elements []Element `json:"elements"`
}

// Encode serializes a command into its wire envelope.
func Encode(cmd Command) (Envelope, error) {
	switch c := cmd.(type) {
	case Add:
		return marshalEnvelope(TypeAdd, addPayload{Element: c.Element})
	case Update:
		return marshalEnvelope(TypeUpdate, updatePayload{ID: c.ID, Patch: c.Patch})
	case Remove:
		return marshalEnvelope(TypeRemove, removePayload{ID: c.ID})
	case ReplaceAll:
		return marshalEnvelope(TypeReplaceAll, replaceAllPayload{Elements: c.Elements})
	case ClearAll:
		return Envelope{Type: TypeClearAll}, nil
	default:
		return Envelope{}, fmt.Errorf("unknown command type %T", cmd)
	}
}

// Decode deserializes a wire envelope back into a command. An unknown type
// tag yields (nil, nil): the forward-compatibility contract is to ignore it,
// not to fail.
func Decode(env Envelope) (Command, error) {
	switch env.Type {
	case TypeAdd:
		var p addPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode add payload: %w", err)
		}
		return Add{Element: p.Element}, nil
	case TypeUpdate:
		var p updatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode update payload: %w", err)
		}
		return Update{ID: p.ID, Patch: p.Patch}, nil
	case TypeRemove:
		var p removePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode remove payload: %w", err)
		}
		return Remove{ID: p.ID}, nil
	case TypeReplaceAll:
		var p replaceAllPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode replace_all payload: %w", err)
		}
		return ReplaceAll{Elements: p.Elements}, nil
	case TypeClearAll:
		return ClearAll{}, nil
	default:
		return nil, nil
	}
}

func marshalEnvelope(typ string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: data}, nil
}
