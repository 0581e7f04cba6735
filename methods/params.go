package methods

import (
	"bytes"
	"encoding/json"
)

// params is a decoded JSON object. Each accessor checks one key; a present
// key with the wrong type reports !ok just like a missing one.
type params map[string]json.RawMessage

func decodeObject(raw json.RawMessage) (params, bool) {
	var p params
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		return nil, false
	}
	return p, true
}

func (p params) has(key string) bool {
	v, ok := p[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func (p params) float(key string) (float64, bool) {
	if !p.has(key) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(p[key], &v); err != nil {
		return 0, false
	}
	return v, true
}

// optionalFloat returns def when key is absent
func (p params) optionalFloat(key string, def float64) (float64, bool) {
	if !p.has(key) {
		return def, true
	}
	return p.float(key)
}

func (p params) boolean(key string) (bool, bool) {
	if !p.has(key) {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(p[key], &v); err != nil {
		return false, false
	}
	return v, true
}

func (p params) optionalBool(key string, def bool) (bool, bool) {
	if !p.has(key) {
		return def, true
	}
	return p.boolean(key)
}

func (p params) str(key string) (string, bool) {
	if !p.has(key) {
		return "", false
	}
	var v string
	if err := json.Unmarshal(p[key], &v); err != nil {
		return "", false
	}
	return v, true
}

// floats reads several required numeric keys, each checked individually
func (p params) floats(keys ...string) ([]float64, bool) {
	values := make([]float64, len(keys))
	for i, key := range keys {
		v, ok := p.float(key)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// stringList accepts a JSON array of strings
func stringList(raw json.RawMessage) ([]string, bool) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return nil, false
	}
	return list, true
}
