package apperrors

import (
	"encoding/json"
	"net/http"
)

// Body is the JSON error envelope returned by every HTTP endpoint.
type Body struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// WriteHTTP writes err as a Body with the mapped status code.
func WriteHTTP(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(Body{Error: err.Error(), Kind: Kind(err)})
}
