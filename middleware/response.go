package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// TimestampLayout is dd-MM-yyyy HH:mm:ss.
const TimestampLayout = "02-01-2006 15:04:05"

const (
	msgAccessDenied       = "Access denied"
	msgUnauthenticated    = "Unauthenticated"
	msgUnavailable        = "Service unavailable"
	msgMustChangePassword = "must change password before using the system"
	msgForbidden          = "You don't have permission to perform this action"
)

// ErrorBody is the JSON body of every denial written by this package.
type ErrorBody struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

type denier struct {
	location *time.Location
	now      func() time.Time
}

func (d denier) write(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{
		Timestamp: d.now().In(d.location).Format(TimestampLayout),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
	})
}
