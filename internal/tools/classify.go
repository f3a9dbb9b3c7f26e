package tools

import (
	"strings"

	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// Classify applies the uniform success/failure rules of spec.md §4.4 to a
// tool's raw return value. The original source checked each tool's return
// shape inconsistently (some treated any string as success, others
// special-cased "error:"); this collapses all of that into one function so
// every tool, present and future, is judged the same way.
func Classify(raw any) models.ToolResult {
	if raw == nil {
		return models.ToolResult{Success: false, Message: "tool returned empty result"}
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return models.ToolResult{Success: false, Message: "tool returned empty result", Raw: raw}
		}
		lower := strings.ToLower(strings.TrimSpace(v))
		if strings.HasPrefix(lower, "error") || strings.Contains(lower, "failed") || strings.Contains(lower, "not found") {
			return models.ToolResult{Success: false, Message: v, Raw: raw}
		}
		return models.ToolResult{Success: true, Message: v, Raw: raw}

	case map[string]any:
		if status, ok := v["status"]; ok {
			if statusStr, ok := status.(string); ok {
				switch strings.ToLower(statusStr) {
				case "failure", "error":
					return models.ToolResult{Success: false, Message: firstNonEmptyString(v, "summary", "full_output", "message", "tool execution failed"), Raw: raw}
				}
			}
		}
		return models.ToolResult{Success: true, Message: firstNonEmptyString(v, "summary", "message", ""), Raw: raw}

	default:
		return models.ToolResult{Success: true, Raw: raw}
	}
}

func firstNonEmptyString(m map[string]any, keys ...string) string {
	for _, k := range keys[:len(keys)-1] {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return keys[len(keys)-1]
}
