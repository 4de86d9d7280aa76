package ontology

import (
	"bytes"
	"encoding/json"
)

// stringField binds a JSON key to a typed string field. always keeps the key
// in the output even when the value is empty.
type stringField struct {
	key    string
	dst    *string
	always bool
}

var jsonNull = []byte("null")

// decodeObject fills the string fields from a JSON object and returns every
// other member untouched. A known key holding anything but a string is also
// returned as extra, so its value is never coerced.
func decodeObject(data []byte, fields []stringField) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	known := make(map[string]*string, len(fields))
	for _, f := range fields {
		known[f.key] = f.dst
	}

	var extra map[string]json.RawMessage
	for key, value := range raw {
		if dst, ok := known[key]; ok && !bytes.Equal(bytes.TrimSpace(value), jsonNull) {
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				*dst = s
				continue
			}
		}
		if extra == nil {
			extra = map[string]json.RawMessage{}
		}
		extra[key] = value
	}
	return extra, nil
}

// encodeObject is the inverse of decodeObject. A key present in extra wins
// over the typed field of the same name.
func encodeObject(fields []stringField, extra map[string]json.RawMessage) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(fields)+len(extra))
	for key, value := range extra {
		out[key] = value
	}
	for _, f := range fields {
		if _, taken := extra[f.key]; taken {
			continue
		}
		if *f.dst == "" && !f.always {
			continue
		}
		encoded, err := json.Marshal(*f.dst)
		if err != nil {
			return nil, err
		}
		out[f.key] = encoded
	}
	return json.Marshal(out)
}
