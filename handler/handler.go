package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"whatsapp-agent/internal/domain"
	"whatsapp-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
)

// Ingester accepts one normalized webhook event.
type Ingester interface {
	Ingest(ctx context.Context, ev domain.InboundEvent) error
}

type Handler struct {
	ingester Ingester
	log      *slog.Logger
	now      func() time.Time
}

func NewHandler(ingester Ingester, log *slog.Logger) (*Handler, error) {
	if ingester == nil {
		return nil, errors.New("handler: ingester must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ingester: ingester, log: log, now: time.Now}, nil
}

type ackResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handle acknowledges a gateway webhook. Filtered and duplicate events are
// acknowledged with 200 so the gateway does not redeliver them; only
// malformed bodies and internal failures are reported as errors.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	log := h.log.With("correlation_id", corrID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return respond(corrID, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"}), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Warn("webhook body is not valid base64", "err", err)
			return respond(corrID, http.StatusBadRequest, errorResponse{Error: "invalid_payload"}), nil
		}
		body = decoded
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("webhook body is not valid JSON", "err", err)
		return respond(corrID, http.StatusBadRequest, errorResponse{Error: "invalid_payload"}), nil
	}

	ev := payload.toEvent(h.now())
	err := h.ingester.Ingest(ctx, ev)
	switch {
	case err == nil:
		return respond(corrID, http.StatusOK, ackResponse{Status: "accepted"}), nil
	case usecase.Silent(err):
		var ue *usecase.Error
		reason := ""
		if errors.As(err, &ue) {
			reason = ue.Reason
		}
		return respond(corrID, http.StatusOK, ackResponse{Status: "ignored", Reason: reason}), nil
	default:
		log.Error("webhook ingest failed", "event_id", ev.EventID, "code", usecase.CodeOf(err), "err", err)
		return respond(corrID, http.StatusInternalServerError, errorResponse{Error: string(usecase.CodeOf(err))}), nil
	}
}

// ServeHTTP adapts Handle for a plain HTTP server.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, `{"error":"invalid_payload"}`, http.StatusRequestEntityTooLarge)
		return
	}
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	resp, err := h.Handle(r.Context(), events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       string(raw),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func respond(corrID string, status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
