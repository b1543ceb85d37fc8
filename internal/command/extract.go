package command

import (
	"bytes"
	"encoding/json"
)

// Extract pulls every JSON object out of free text such as a language model
// reply. Prose between values is skipped and arrays are flattened into their
// object elements. It never fails; an empty result means nothing was found.
func Extract(text string) []Raw {
	data := []byte(text)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			out := make([]Raw, 0, len(items))
			for _, item := range items {
				if isObject(item) {
					out = append(out, Raw{Line: 1, Object: item})
				}
			}
			return out
		}
	}

	var out []Raw
	i := 0
	for i < len(data) {
		next := bytes.IndexAny(data[i:], "{[")
		if next < 0 {
			break
		}
		i += next

		dec := json.NewDecoder(bytes.NewReader(data[i:]))
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			i++
			continue
		}
		line := lineAt(data, int64(i))
		i += int(dec.InputOffset())

		switch v[0] {
		case '{':
			out = append(out, Raw{Line: line, Object: v})
		case '[':
			var items []json.RawMessage
			if err := json.Unmarshal(v, &items); err != nil {
				continue
			}
			for _, item := range items {
				if isObject(item) {
					out = append(out, Raw{Line: line, Object: item})
				}
			}
		}
	}
	return out
}
