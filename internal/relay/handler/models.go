package handler

import (
	"encoding/json"
	"time"
)

// RelayRequest is the body of both submission routes. Fields stay raw so
// shape problems can be told apart from unparseable JSON.
type RelayRequest struct {
	FormData       json.RawMessage `json:"formData"`
	RecipientEmail json.RawMessage `json:"recipientEmail"`
}

type RelayResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type TestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

const (
	MessageDelivered = "E-posta başarıyla gönderildi"
	MessageTest      = "Form relay sunucusu çalışıyor"
)

// timestamp renders t the way browsers print Date.toISOString().
func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
