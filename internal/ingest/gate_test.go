package ingest

import (
	"errors"
	"testing"

	"slackrelay/internal/domain"
)

const testKey = "s3cret"

func TestAdmit_Valid(t *testing.T) {
	g := NewGate(testKey)
	msg, err := g.Admit([]byte(`{"message":"Deploy completed","source":"CI","env":"prod"}`), testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Source != domain.SourceCallback {
		t.Errorf("expected callback source, got %v", msg.Source)
	}
	if msg.Text != "Deploy completed" {
		t.Errorf("expected text, got %q", msg.Text)
	}
	if msg.SenderID != "" {
		t.Errorf("callback messages have no sender, got %q", msg.SenderID)
	}
	want := domain.Metadata{{Key: "source", Value: "CI"}, {Key: "env", Value: "prod"}}
	if len(msg.Metadata) != len(want) {
		t.Fatalf("expected %d metadata fields, got %d", len(want), len(msg.Metadata))
	}
	for i := range want {
		if msg.Metadata[i] != want[i] {
			t.Errorf("field %d: expected %+v, got %+v", i, want[i], msg.Metadata[i])
		}
	}
}

func TestAdmit_PreservesFieldOrder(t *testing.T) {
	g := NewGate(testKey)
	msg, err := g.Admit([]byte(`{"zulu":"1","message":"m","alpha":"2","mike":"3"}`), testKey)
	if err != nil {
		t.Fatal(err)
	}
	keys := []string{"zulu", "alpha", "mike"}
	for i, k := range keys {
		if msg.Metadata[i].Key != k {
			t.Errorf("position %d: expected %s, got %s", i, k, msg.Metadata[i].Key)
		}
	}
}

func TestAdmit_NonStringMetadataRendered(t *testing.T) {
	g := NewGate(testKey)
	msg, err := g.Admit([]byte(`{"message":"m","build":42,"ok":true,"tags":["a", "b"]}`), testKey)
	if err != nil {
		t.Fatal(err)
	}
	for key, want := range map[string]string{"build": "42", "ok": "true", "tags": `["a","b"]`} {
		got, _ := msg.Metadata.Get(key)
		if got != want {
			t.Errorf("%s: expected %s, got %s", key, want, got)
		}
	}
}

func TestAdmit_Unauthorized(t *testing.T) {
	g := NewGate(testKey)
	for _, key := range []string{"", "wrong", testKey + "x", "S3CRET"} {
		_, err := g.Admit([]byte(`{"message":"valid"}`), key)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("key %q: expected ErrUnauthorized, got %v", key, err)
		}
	}
}

func TestAdmit_UnauthorizedBeforePayloadChecks(t *testing.T) {
	g := NewGate(testKey)
	for _, body := range []string{`not json`, `{"source":"x"}`, `{"message":""}`} {
		_, err := g.Admit([]byte(body), "bad")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("body %s: expected ErrUnauthorized, got %v", body, err)
		}
	}
}

func TestAdmit_EmptyConfiguredKeyRejects(t *testing.T) {
	g := NewGate("")
	if _, err := g.Admit([]byte(`{"message":"x"}`), ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAdmit_Malformed(t *testing.T) {
	g := NewGate(testKey)
	for _, body := range []string{``, `not json`, `[1,2]`, `"str"`, `{"message":"a"`, `{"message":"a"} trailing`, `{"message":5}`} {
		_, err := g.Admit([]byte(body), testKey)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("body %q: expected ErrMalformedPayload, got %v", body, err)
		}
	}
}

func TestAdmit_MissingMessage(t *testing.T) {
	g := NewGate(testKey)
	for _, body := range []string{`{"source":"x"}`, `{}`, `{"message":null}`} {
		_, err := g.Admit([]byte(body), testKey)
		var missing *MissingFieldError
		if !errors.As(err, &missing) {
			t.Fatalf("body %s: expected MissingFieldError, got %v", body, err)
		}
		if missing.Field != "message" {
			t.Errorf("expected field message, got %s", missing.Field)
		}
	}
}

func TestAdmit_EmptyMessage(t *testing.T) {
	g := NewGate(testKey)
	for _, body := range []string{`{"message":""}`, `{"message":"   \n\t"}`} {
		_, err := g.Admit([]byte(body), testKey)
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("body %q: expected ErrEmptyMessage, got %v", body, err)
		}
	}
}
