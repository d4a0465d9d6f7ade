package providers

import (
	"encoding/json"
	"fmt"
)

// decodeArgs parses a tool call's argument object. Empty input is an empty
// object. On failure the error is returned alongside an empty map so the
// call still round-trips in history.
func decodeArgs(raw []byte) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}, fmt.Errorf("arguments are not a valid JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
