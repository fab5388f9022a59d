// Package core holds the pieces shared by all blog backend packages, most notably the
// JSON envelope every API response is wrapped in.
package core

import (
	"net/http"

	"github.com/goccy/go-json"
)

// DefaultErrorMessage is sent when an error carries no message of its own
const DefaultErrorMessage = "Internal Error Message"

// Response is the JSON envelope of the API.
//
// Endpoint specific responses embed it and add their payload, errors that are not part
// of an endpoint contract are sent with StatusCode set.
type Response struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message,omitempty"`
}

// WriteJSON writes v as JSON with the given status code
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(Response{StatusCode: status, Message: DefaultErrorMessage})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// WriteError writes the error envelope {"success":false,"statusCode":status,"message":message}
func WriteError(w http.ResponseWriter, status int, message string) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if message == "" {
		message = DefaultErrorMessage
	}
	WriteJSON(w, status, Response{StatusCode: status, Message: message})
}
