package domain

import (
	"testing"
)

func TestMergePayloadPartialKeepsAbsentFields(t *testing.T) {
	t.Parallel()

	existing := Payload{
		"id":      "https://social.example/o/1",
		"type":    "Note",
		"content": "original",
		"summary": "keep me",
	}
	merged := MergePayload(existing, Payload{"content": "edited"}, false)

	if got, _ := merged["content"].(string); got != "edited" {
		t.Fatalf("content = %q, want edited", got)
	}
	if got, _ := merged["summary"].(string); got != "keep me" {
		t.Fatalf("summary = %q, want keep me", got)
	}
	if got := merged.ID(); got != "https://social.example/o/1" {
		t.Fatalf("id = %q, want original id", got)
	}
	if got, _ := existing["content"].(string); got != "original" {
		t.Fatal("merge mutated the existing payload")
	}
}

func TestMergePayloadPartialNilDeletesField(t *testing.T) {
	t.Parallel()

	existing := Payload{"id": "https://social.example/o/1", "type": "Note", "summary": "gone"}
	merged := MergePayload(existing, Payload{"summary": nil}, false)
	if _, present := merged["summary"]; present {
		t.Fatal("expected nil update to delete the field")
	}
}

func TestMergePayloadFullReplacePreservesID(t *testing.T) {
	t.Parallel()

	existing := Payload{"id": "https://social.example/o/1", "type": "Note", "content": "original"}
	merged := MergePayload(existing, Payload{"type": "Article", "name": "replaced"}, true)

	if got := merged.ID(); got != "https://social.example/o/1" {
		t.Fatalf("id = %q, want immutable original", got)
	}
	if _, present := merged["content"]; present {
		t.Fatal("expected full replace to drop unlisted fields")
	}
	if got, _ := merged["name"].(string); got != "replaced" {
		t.Fatalf("name = %q", got)
	}
}

func TestDecodeEncodePayloadRoundTrip(t *testing.T) {
	t.Parallel()

	payload, err := DecodePayload([]byte(`{"id":"https://social.example/o/1","type":"Note","to":["https://remote.example/u/a"]}`))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got := payload.ID(); got != "https://social.example/o/1" {
		t.Fatalf("id = %q", got)
	}

	data, err := EncodePayload(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	again, err := DecodePayload(data)
	if err != nil {
		t.Fatalf("decode round trip: %v", err)
	}
	if again.ID() != payload.ID() || again.Type().First() != payload.Type().First() {
		t.Fatalf("round trip mismatch: %v vs %v", again, payload)
	}
}

func TestDecodePayloadRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	if _, err := DecodePayload([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
