package utils

import (
	"encoding/json"
	"net/http"
)

// WriteJSONResponse sets the JSON content type, writes the status code and
// encodes data onto the response.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
