package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// rawJSONArg returns a tool argument that may arrive either as a JSON string
// or as an already decoded JSON value.
func rawJSONArg(args map[string]any, key string) (json.RawMessage, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("%s is not valid JSON", key)
		}
		return json.RawMessage(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		return b, nil
	}
}

// numberArg reads an optional numeric argument.
func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// idListArg reads a list of IDs given as a JSON array, a JSON array string
// or a comma-separated string.
func idListArg(args map[string]any, key string) ([]string, error) {
	var ids []string
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case []any:
		for _, item := range v {
			id, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must contain strings", key)
			}
			ids = append(ids, id)
		}
	case string:
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "[") {
			if err := parseJSON(v, &ids); err != nil {
				return nil, fmt.Errorf("parse %s: %w", key, err)
			}
			break
		}
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	default:
		return nil, fmt.Errorf("%s must be a list of IDs", key)
	}
	return ids, nil
}
