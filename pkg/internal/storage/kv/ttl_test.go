package kv

import (
	"testing"
	"time"
)

func TestTTLWrapper(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	raw, err := encodeWithTTL([]byte("plain"), 0, now)
	if err != nil || string(raw) != "plain" {
		t.Fatalf("zero ttl should not wrap, got %q, %v", raw, err)
	}

	wrapped, err := encodeWithTTL([]byte("lease"), time.Minute, now)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	v, expired, err := decodeWithTTL(wrapped, now.Add(30*time.Second))
	if err != nil || expired || string(v) != "lease" {
		t.Fatalf("decode before expiry = %q, %v, %v", v, expired, err)
	}

	_, expired, err = decodeWithTTL(wrapped, now.Add(time.Minute))
	if err != nil || !expired {
		t.Fatalf("decode at expiry should report expired, got %v, %v", expired, err)
	}
}
