package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"slackrelay/internal/notify"
)

// Notifier sends cluster notifications. notify.Service implements it.
type Notifier interface {
	Send(ctx context.Context, req notify.Request) notify.Result
}

// handleNotify serves POST /api/notify. It shares the webhook API key.
func (w *Webhook) handleNotify(rw http.ResponseWriter, r *http.Request) {
	if err := w.gate.Authenticate(r.Header.Get(apiKeyHeader)); err != nil {
		w.notifyReject(rw, r, http.StatusUnauthorized, "unauthorized", "Unauthorized", err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBodyBytes))
	if err != nil {
		w.notifyReject(rw, r, http.StatusBadRequest, "invalid_json", "Invalid JSON", err)
		return
	}

	req, err := notify.ParseRequest(body)
	if err != nil {
		var verr *notify.ValidationError
		switch {
		case errors.As(err, &verr):
			w.notifyReject(rw, r, http.StatusBadRequest, "validation_error", verr.Reason, err)
		case errors.Is(err, notify.ErrInvalidDate):
			w.notifyReject(rw, r, http.StatusBadRequest, "invalid_date", "Invalid expiration_date format. Use ISO 8601.", err)
		default:
			w.notifyReject(rw, r, http.StatusBadRequest, "invalid_json", "Invalid JSON", err)
		}
		return
	}

	w.logger.Info("processing notification request",
		"cluster_id", req.ClusterID,
		"notification_type", req.Type,
	)

	res := w.notifier.Send(r.Context(), req)
	if !res.Sent {
		w.countNotify("send_failed")
		writeJSON(rw, http.StatusInternalServerError, map[string]string{
			"status":          "failed",
			"notification_id": res.ID,
			"error":           res.Error,
		})
		return
	}

	w.countNotify("success")
	writeJSON(rw, http.StatusOK, map[string]string{
		"status":          "sent",
		"notification_id": res.ID,
		"channel":         res.Channel,
		"timestamp":       res.Timestamp.Format(time.RFC3339),
	})
}

func (w *Webhook) notifyReject(rw http.ResponseWriter, r *http.Request, status int, label, message string, err error) {
	w.countNotify(label)
	w.logger.Warn("notify request rejected",
		"status", label,
		"remote", r.RemoteAddr,
		"err", fmt.Sprint(err),
	)
	writeJSON(rw, status, map[string]string{"error": message})
}

func (w *Webhook) countNotify(status string) {
	if w.metrics != nil {
		w.metrics.NotifyRequest(status)
	}
}
