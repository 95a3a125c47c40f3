package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderContentSubstitution(t *testing.T) {
	vars := map[string]interface{}{
		"name":    "Ana",
		"score":   42.0,
		"ratio":   0.5,
		"active":  true,
		"address": map[string]interface{}{"city": "Lima"},
	}

	assert.Equal(t, "Hi Ana!", RenderContent("Hi {{name}}!", vars))
	assert.Equal(t, "Score: 42", RenderContent("Score: {{score}}", vars), "whole numbers render without decimals")
	assert.Equal(t, "Ratio: 0.5", RenderContent("Ratio: {{ratio}}", vars))
	assert.Equal(t, "Active: true", RenderContent("Active: {{active}}", vars))
	assert.Equal(t, `{"city":"Lima"}`, RenderContent("{{address}}", vars))
}

func TestRenderContentUnknownKeysLeftVisible(t *testing.T) {
	out := RenderContent("Hi {{name}}, code {{code}}", map[string]interface{}{"name": "Ana"})
	assert.Equal(t, "Hi Ana, code {{code}}", out)
}

func TestRenderContentNoVariables(t *testing.T) {
	assert.Equal(t, "plain", RenderContent("plain", nil))
	assert.Equal(t, "", RenderContent("", map[string]interface{}{"a": 1}))
}
