package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariableValueFromTypesByShape(t *testing.T) {
	v, err := VariableValueFrom("hello")
	require.NoError(t, err)
	assert.Equal(t, VariableTypeString, v.Type)
	assert.Equal(t, "hello", v.Str)

	v, err = VariableValueFrom(42)
	require.NoError(t, err)
	assert.Equal(t, VariableTypeNumber, v.Type)
	assert.Equal(t, 42.0, v.Num)

	v, err = VariableValueFrom(true)
	require.NoError(t, err)
	assert.Equal(t, VariableTypeBoolean, v.Type)
	assert.True(t, v.Bool)

	v, err = VariableValueFrom(json.RawMessage(`{"city":"Lima"}`))
	require.NoError(t, err)
	assert.Equal(t, VariableTypeObject, v.Type)

	v, err = VariableValueFrom(json.RawMessage(`[1,2,3]`))
	require.NoError(t, err)
	assert.Equal(t, VariableTypeArray, v.Type)
}

func TestDecodeDispatchesOnDiscriminatorNotShape(t *testing.T) {
	// The stored type tag wins even when the payload could parse as something
	// else: "42" stored as a string stays a string.
	v, err := DecodeVariableValue(VariableTypeString, []byte(`"42"`))
	require.NoError(t, err)
	assert.Equal(t, VariableTypeString, v.Type)
	assert.Equal(t, "42", v.Str)

	_, err = DecodeVariableValue("timestamp", []byte(`"2024-01-01"`))
	assert.Error(t, err)
}

func TestVariableValueJSONRoundTrip(t *testing.T) {
	original := VariableValue{Type: VariableTypeNumber, Num: 3.5}
	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"number","value":3.5}`, string(raw))

	var decoded VariableValue
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original, decoded)

	// Bare values are accepted with the type inferred from the shape.
	var inferred VariableValue
	require.NoError(t, json.Unmarshal([]byte(`"plain"`), &inferred))
	assert.Equal(t, VariableTypeString, inferred.Type)
	assert.Equal(t, "plain", inferred.Str)
}

func TestVariableExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	v := &FlowSessionVariable{}
	assert.False(t, v.Expired(now), "no expiry means never expired")

	v.ExpiresAt = &future
	assert.False(t, v.Expired(now))

	v.ExpiresAt = &past
	assert.True(t, v.Expired(now))
}

func TestExecutionPathTailTracksCurrentNode(t *testing.T) {
	e := &FlowExecution{}
	e.SetPath([]string{"n1", "n2", "n3"})
	assert.Equal(t, "n3", e.CurrentNodeID)
	assert.Equal(t, []string{"n1", "n2", "n3"}, e.Path())
}
