package utils

import (
	"encoding/json"
)

// MustMarshalJSON marshals v and panics on failure. Reserved for values built
// from in-memory types that cannot legitimately fail to encode.
func MustMarshalJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("failed to marshal JSON: " + err.Error())
	}
	return data
}
