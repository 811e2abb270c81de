package binding

import "testing"

func TestHeaderCodec_PlaintextRoundTrip(t *testing.T) {
	codec := NewHeaderCodec("")
	headers := map[string]string{"x-gateway-key": "g1", "authorization": "Bearer inner"}

	blob, err := codec.Encode(headers)
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.Decode(blob)
	if err != nil {
		t.Fatal(err)
	}
	if got["x-gateway-key"] != "g1" || got["authorization"] != "Bearer inner" {
		t.Fatalf("round trip lost data: %#v", got)
	}
}

func TestHeaderCodec_SealedRoundTrip(t *testing.T) {
	codec := NewHeaderCodec("edge-secret-1")
	headers := map[string]string{"cf-access-client-id": "id1"}

	blob, err := codec.Encode(headers)
	if err != nil {
		t.Fatal(err)
	}
	if blob[:7] != sealedPrefix {
		t.Fatalf("sealed blob missing prefix: %q", blob[:12])
	}

	got, err := codec.Decode(blob)
	if err != nil {
		t.Fatal(err)
	}
	if got["cf-access-client-id"] != "id1" {
		t.Fatalf("round trip lost data: %#v", got)
	}

	// A different key must not open the blob.
	if _, err := NewHeaderCodec("other-secret").Decode(blob); err == nil {
		t.Fatal("decode with wrong key should fail")
	}
}

func TestHeaderCodec_Empty(t *testing.T) {
	codec := NewHeaderCodec("k")
	blob, err := codec.Encode(nil)
	if err != nil || blob != "" {
		t.Fatalf("empty encode: %q, %v", blob, err)
	}
	got, err := codec.Decode("")
	if err != nil || got != nil {
		t.Fatalf("empty decode: %#v, %v", got, err)
	}
}

func TestHeaderCodec_SealedUpgradeReadsPlaintext(t *testing.T) {
	// Blobs written before a key was configured must stay readable.
	plainBlob, _ := NewHeaderCodec("").Encode(map[string]string{"x-a": "1"})
	got, err := NewHeaderCodec("new-key").Decode(plainBlob)
	if err != nil || got["x-a"] != "1" {
		t.Fatalf("plaintext blob unreadable after key rollout: %#v, %v", got, err)
	}
}
