// Package notify sends cluster lifecycle notifications to an operators'
// channel, mentioning the on-call user group.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type is the kind of cluster notification.
type Type string

const (
	TypeWarning    Type = "warning"    // expiry in about 48 hours
	TypeExpiration Type = "expiration" // cluster has expired
)

// Valid reports whether t is a known notification type.
func (t Type) Valid() bool {
	return t == TypeWarning || t == TypeExpiration
}

// Request is the body of POST /api/notify.
type Request struct {
	ClusterID      string
	ClusterName    string
	Type           Type
	ExpirationDate *time.Time
	Message        string // replaces the generated text
	OwnerEmail     string
}

// Result is the outcome of one notification.
type Result struct {
	Sent      bool
	ID        string
	Channel   string
	Timestamp time.Time
	Error     string
}

var (
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrInvalidDate = errors.New("invalid expiration_date")
)

// ValidationError describes a missing or invalid request field.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

type wireRequest struct {
	ClusterID      string  `json:"cluster_id"`
	ClusterName    string  `json:"cluster_name"`
	Type           string  `json:"notification_type"`
	ExpirationDate *string `json:"expiration_date"`
	Message        *string `json:"message"`
	OwnerEmail     string  `json:"owner_email"`
}

// ParseRequest decodes and validates a notification request.
func ParseRequest(raw []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(raw, &w); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	switch {
	case w.ClusterID == "":
		return Request{}, &ValidationError{Reason: "cluster_id is required"}
	case w.ClusterName == "":
		return Request{}, &ValidationError{Reason: "cluster_name is required"}
	case w.Type == "":
		return Request{}, &ValidationError{Reason: "notification_type is required"}
	case !Type(w.Type).Valid():
		return Request{}, &ValidationError{Reason: fmt.Sprintf(
			"notification_type must be one of: %s, %s", TypeWarning, TypeExpiration)}
	}

	req := Request{
		ClusterID:   w.ClusterID,
		ClusterName: w.ClusterName,
		Type:        Type(w.Type),
		OwnerEmail:  w.OwnerEmail,
	}
	if w.Message != nil {
		req.Message = *w.Message
	}
	if w.ExpirationDate != nil && *w.ExpirationDate != "" {
		ts, err := parseISO8601(*w.ExpirationDate)
		if err != nil {
			return Request{}, ErrInvalidDate
		}
		req.ExpirationDate = &ts
	}
	return req, nil
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseISO8601 accepts the common ISO 8601 forms. Times without a zone are UTC.
func parseISO8601(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
