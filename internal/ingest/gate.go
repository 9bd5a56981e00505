// Package ingest validates raw callback payloads and turns them into messages.
package ingest

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"slackrelay/internal/domain"
)

// MessageField is the required payload field carrying the text to relay.
const MessageField = "message"

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrEmptyMessage     = errors.New("message is empty")
)

// MissingFieldError reports a required field absent from the payload.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}

// Gate authenticates and validates callback payloads.
type Gate struct {
	apiKey []byte
}

// NewGate creates a gate that accepts only requests presenting apiKey.
// An empty key rejects every request.
func NewGate(apiKey string) *Gate {
	return &Gate{apiKey: []byte(apiKey)}
}

// Authenticate reports ErrUnauthorized unless suppliedKey matches.
func (g *Gate) Authenticate(suppliedKey string) error {
	if len(g.apiKey) == 0 || suppliedKey == "" ||
		subtle.ConstantTimeCompare(g.apiKey, []byte(suppliedKey)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Admit authenticates suppliedKey and parses raw into a callback message.
// The key is checked before the payload is looked at.
func (g *Gate) Admit(raw []byte, suppliedKey string) (domain.Message, error) {
	if err := g.Authenticate(suppliedKey); err != nil {
		return domain.Message{}, err
	}

	fields, err := decodeObject(raw)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var (
		text     string
		found    bool
		metadata domain.Metadata
	)
	for _, f := range fields {
		if f.key != MessageField {
			metadata = append(metadata, domain.Field{Key: f.key, Value: f.display()})
			continue
		}
		if string(bytes.TrimSpace(f.raw)) == "null" {
			continue
		}
		if err := json.Unmarshal(f.raw, &text); err != nil {
			return domain.Message{}, fmt.Errorf("%w: field %q must be a string", ErrMalformedPayload, MessageField)
		}
		found = true
	}
	if !found {
		return domain.Message{}, &MissingFieldError{Field: MessageField}
	}
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, ErrEmptyMessage
	}

	return domain.Message{
		Source:   domain.SourceCallback,
		Text:     text,
		Metadata: metadata,
	}, nil
}

type rawField struct {
	key string
	raw json.RawMessage
}

// display renders a field value for humans: strings verbatim, anything
// else as compact JSON.
func (f rawField) display() string {
	var s string
	if err := json.Unmarshal(f.raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, f.raw); err != nil {
		return string(f.raw)
	}
	return buf.String()
}

// decodeObject reads a single JSON object keeping its keys in document
// order. Duplicate keys keep the last value at the first position.
func decodeObject(raw []byte) ([]rawField, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var fields []rawField
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("expected object key")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if i, dup := index[key]; dup {
			fields[i].raw = value
			continue
		}
		index[key] = len(fields)
		fields = append(fields, rawField{key: key, raw: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return fields, nil
}
