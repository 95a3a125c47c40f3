package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RenderContent substitutes {{key}} placeholders in content with values from
// vars. Unknown keys are left untouched so a half-filled template is visible
// in the delivered message instead of silently collapsing to an empty string.
func RenderContent(content string, vars map[string]interface{}) string {
	if content == "" || len(vars) == 0 {
		return content
	}
	for key, value := range vars {
		placeholder := "{{" + key + "}}"
		if !strings.Contains(content, placeholder) {
			continue
		}
		content = strings.ReplaceAll(content, placeholder, formatTemplateValue(value))
	}
	return content
}

// DecodeVariableSnapshot parses the JSON variable snapshot stored alongside a
// follow-up schedule. An empty snapshot decodes to nil.
func DecodeVariableSnapshot(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("decode variable snapshot: %w", err)
	}
	return vars, nil
}

func formatTemplateValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		// json.Unmarshal yields float64 for every number; render 42 as "42",
		// not "42.000000".
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
