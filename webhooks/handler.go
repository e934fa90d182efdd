package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const (
	SignatureHeader = "X-Webhook-Signature"

	requestBodyLimit int64 = 1 << 20
)

type ingressResponse struct {
	Received    bool   `json:"received"`
	WebhookID   string `json:"webhookId,omitempty"`
	EventID     string `json:"eventId,omitempty"`
	IsDuplicate bool   `json:"isDuplicate"`
	Verified    bool   `json:"verified"`
	Message     string `json:"message"`
}

// NewIngressHandler exposes the ingest service over HTTP. The response is
// always 200-shaped: malformed bodies answer received:false instead of an
// HTTP error, so upstream senders never enter a retry storm.
func NewIngressHandler(service *IngestService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeIngressResponse(w, ingressResponse{Message: "method not allowed"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, requestBodyLimit))
		if err != nil {
			writeIngressResponse(w, ingressResponse{Message: "unreadable body"})
			return
		}

		var payload Payload
		if err := json.Unmarshal(body, &payload); err != nil {
			writeIngressResponse(w, ingressResponse{Message: "malformed payload"})
			return
		}

		signature := strings.TrimSpace(r.Header.Get(SignatureHeader))
		result, err := service.ReceiveWebhook(r.Context(), payload, signature, body)
		if err != nil {
			writeIngressResponse(w, ingressResponse{Message: "ingest failed"})
			return
		}

		writeIngressResponse(w, ingressResponse{
			Received:    result.Success,
			WebhookID:   result.WebhookID,
			EventID:     result.EventID,
			IsDuplicate: result.IsDuplicate,
			Verified:    result.Verified,
			Message:     result.Message,
		})
	})
}

func writeIngressResponse(w http.ResponseWriter, res ingressResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(res)
}
