package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Variable scope constants. Scope controls visibility lifetime: node-scoped
// variables are only visible while executing their owning node, everything else
// is visible session-wide.
const (
	ScopeGlobal  = "global"
	ScopeFlow    = "flow"
	ScopeNode    = "node"
	ScopeUser    = "user"
	ScopeSession = "session"
)

// ScopeResolutionOrder is the lookup chain applied when a node reads a
// variable name, most specific first. This ordering decides which value a flow
// author's reference resolves to when several scopes define the same key.
var ScopeResolutionOrder = []string{
	ScopeNode,
	ScopeSession,
	ScopeFlow,
	ScopeGlobal,
	ScopeUser,
}

// ValidScope reports whether s is one of the five variable scopes.
func ValidScope(s string) bool {
	switch s {
	case ScopeGlobal, ScopeFlow, ScopeNode, ScopeUser, ScopeSession:
		return true
	}
	return false
}

// Variable type discriminators for the polymorphic value column.
const (
	VariableTypeString  = "string"
	VariableTypeNumber  = "number"
	VariableTypeBoolean = "boolean"
	VariableTypeObject  = "object"
	VariableTypeArray   = "array"
)

// FlowSessionVariable is one named value scoped to a session. The pair
// (session_id, variable_key) is unique; writes are upserts, never duplicate
// rows. The value column holds JSON and the variable_type column is the
// explicit discriminator used to decode it.
type FlowSessionVariable struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	SessionID     string     `json:"session_id" gorm:"uniqueIndex:idx_session_variable_key"`
	VariableKey   string     `json:"variable_key" gorm:"uniqueIndex:idx_session_variable_key"`
	VariableType  string     `json:"variable_type"`
	VariableValue string     `json:"variable_value"`
	Scope         string     `json:"scope" gorm:"index"`
	NodeID        string     `json:"node_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the variable has an expiry in the past. Expired rows
// stay in the store until explicitly deleted but every read path treats them
// as absent.
func (v *FlowSessionVariable) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && v.ExpiresAt.Before(now)
}

// SetValue encodes val into the type/value column pair.
func (v *FlowSessionVariable) SetValue(val VariableValue) error {
	payload, err := val.MarshalPayload()
	if err != nil {
		return err
	}
	v.VariableType = val.Type
	v.VariableValue = string(payload)
	return nil
}

// Value decodes the stored column pair back into a tagged value.
func (v *FlowSessionVariable) Value() (VariableValue, error) {
	return DecodeVariableValue(v.VariableType, []byte(v.VariableValue))
}

// VariableValue is the tagged union for polymorphic variable values. Exactly
// one payload field is meaningful, selected by Type; readers must dispatch on
// the discriminator, never on the run-time shape of the payload.
type VariableValue struct {
	Type string
	Str  string
	Num  float64
	Bool bool
	JSON json.RawMessage // object or array payload
}

// VariableValueFrom builds a tagged value from an arbitrary Go value.
func VariableValueFrom(val interface{}) (VariableValue, error) {
	switch t := val.(type) {
	case nil:
		return VariableValue{Type: VariableTypeString, Str: ""}, nil
	case string:
		return VariableValue{Type: VariableTypeString, Str: t}, nil
	case bool:
		return VariableValue{Type: VariableTypeBoolean, Bool: t}, nil
	case int:
		return VariableValue{Type: VariableTypeNumber, Num: float64(t)}, nil
	case int64:
		return VariableValue{Type: VariableTypeNumber, Num: float64(t)}, nil
	case float64:
		return VariableValue{Type: VariableTypeNumber, Num: t}, nil
	case json.RawMessage:
		return taggedFromJSON(t)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return VariableValue{}, fmt.Errorf("unsupported variable value: %w", err)
		}
		return taggedFromJSON(raw)
	}
}

func taggedFromJSON(raw json.RawMessage) (VariableValue, error) {
	trimmed := string(raw)
	if len(trimmed) == 0 {
		return VariableValue{}, fmt.Errorf("empty variable payload")
	}
	switch trimmed[0] {
	case '[':
		return VariableValue{Type: VariableTypeArray, JSON: raw}, nil
	case '{':
		return VariableValue{Type: VariableTypeObject, JSON: raw}, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return VariableValue{}, err
		}
		return VariableValue{Type: VariableTypeString, Str: s}, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return VariableValue{}, err
		}
		return VariableValue{Type: VariableTypeBoolean, Bool: b}, nil
	default:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return VariableValue{}, fmt.Errorf("unsupported variable payload: %w", err)
		}
		return VariableValue{Type: VariableTypeNumber, Num: n}, nil
	}
}

// MarshalPayload encodes the active payload as JSON.
func (v VariableValue) MarshalPayload() ([]byte, error) {
	switch v.Type {
	case VariableTypeString:
		return json.Marshal(v.Str)
	case VariableTypeNumber:
		return json.Marshal(v.Num)
	case VariableTypeBoolean:
		return json.Marshal(v.Bool)
	case VariableTypeObject, VariableTypeArray:
		if len(v.JSON) == 0 {
			return nil, fmt.Errorf("missing JSON payload for %s variable", v.Type)
		}
		return v.JSON, nil
	default:
		return nil, fmt.Errorf("unknown variable type %q", v.Type)
	}
}

// DecodeVariableValue rebuilds a tagged value from the stored discriminator
// and JSON payload.
func DecodeVariableValue(variableType string, payload []byte) (VariableValue, error) {
	out := VariableValue{Type: variableType}
	switch variableType {
	case VariableTypeString:
		if err := json.Unmarshal(payload, &out.Str); err != nil {
			return VariableValue{}, fmt.Errorf("decode string variable: %w", err)
		}
	case VariableTypeNumber:
		if err := json.Unmarshal(payload, &out.Num); err != nil {
			return VariableValue{}, fmt.Errorf("decode number variable: %w", err)
		}
	case VariableTypeBoolean:
		if err := json.Unmarshal(payload, &out.Bool); err != nil {
			return VariableValue{}, fmt.Errorf("decode boolean variable: %w", err)
		}
	case VariableTypeObject, VariableTypeArray:
		if !json.Valid(payload) {
			return VariableValue{}, fmt.Errorf("invalid %s variable payload", variableType)
		}
		out.JSON = append(json.RawMessage(nil), payload...)
	default:
		return VariableValue{}, fmt.Errorf("unknown variable type %q", variableType)
	}
	return out, nil
}

// MarshalJSON renders the union as {"type": ..., "value": ...} so the tag
// survives transport to external interpreters and API clients.
func (v VariableValue) MarshalJSON() ([]byte, error) {
	payload, err := v.MarshalPayload()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}{Type: v.Type, Value: payload})
}

// UnmarshalJSON accepts the tagged form produced by MarshalJSON, or a bare
// JSON value whose type is inferred from its shape.
func (v *VariableValue) UnmarshalJSON(data []byte) error {
	var tagged struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &tagged); err == nil && tagged.Type != "" && len(tagged.Value) > 0 {
		decoded, err := DecodeVariableValue(tagged.Type, tagged.Value)
		if err != nil {
			return err
		}
		*v = decoded
		return nil
	}

	decoded, err := taggedFromJSON(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Interface returns the plain Go value behind the tag, suitable for template
// rendering and interpreter snapshots.
func (v VariableValue) Interface() interface{} {
	switch v.Type {
	case VariableTypeString:
		return v.Str
	case VariableTypeNumber:
		return v.Num
	case VariableTypeBoolean:
		return v.Bool
	case VariableTypeObject:
		m := map[string]interface{}{}
		_ = json.Unmarshal(v.JSON, &m)
		return m
	case VariableTypeArray:
		var a []interface{}
		_ = json.Unmarshal(v.JSON, &a)
		return a
	}
	return nil
}
