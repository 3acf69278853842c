package harness

import (
	"encoding/json"
	"strings"
)

// ExtractJSONArray finds the JSON array embedded in a free-form message,
// typically structured command output preceded by log lines such as
//
//	INFO memory is not limited, skipping package=... [{"id":"1"}]
//
// The span ends at the last ']'. Starting from the first '[', each '[' is
// tried in turn so bracketed text in the preamble does not hide the array.
func ExtractJSONArray(message string) ([]json.RawMessage, error) {
	end := strings.LastIndexByte(message, ']')
	start := strings.IndexByte(message, '[')
	if start < 0 || end < start {
		return nil, &ParseError{Reason: "no JSON array in message"}
	}

	var lastErr error
	for start >= 0 && start < end {
		var items []json.RawMessage
		err := json.Unmarshal([]byte(message[start:end+1]), &items)
		if err == nil {
			return items, nil
		}
		lastErr = err

		next := strings.IndexByte(message[start+1:end], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, &ParseError{Reason: "invalid JSON array in message", Err: lastErr}
}

// DecodeJSONArray extracts the embedded array and decodes each item into T.
func DecodeJSONArray[T any](message string) ([]T, error) {
	raw, err := ExtractJSONArray(message)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, &ParseError{Reason: "invalid array item", Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}
