// Package canonjson produces deterministic, sorted-key JSON encodings used
// everywhere the hub fingerprints a value (snapshot build tags §4.D, title
// prompt fingerprints §4.H). There is no third-party canonical-JSON library
// among the example repos' dependency sets, and the RFC 8785-style
// algorithm needed here is a few lines of recursive map-key sorting over
// encoding/json's already-decoded output — a dependency would buy nothing
// stdlib doesn't already provide.
package canonjson

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Marshal encodes v the same way json.Marshal does, except object keys are
// sorted so the same logical value always produces the same bytes
// regardless of struct field order or map iteration order.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, decoded); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
