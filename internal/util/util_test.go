package util

import (
	"encoding/base64"
	"testing"
)

func TestRandomStringAlphabetAndLength(t *testing.T) {
	for _, n := range []int{1, 16, 64} {
		got := RandomString(n)
		if len(got) != n {
			t.Fatalf("expected %d characters, got %d", n, len(got))
		}
		for _, r := range got {
			isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !isAlnum {
				t.Fatalf("unexpected character %q in %q", r, got)
			}
		}
	}
	if RandomString(0) != "" {
		t.Fatalf("expected empty string for n=0")
	}
	if RandomString(16) == RandomString(16) {
		t.Fatalf("expected distinct random strings")
	}
}

func TestDecodeBase64URLPaddingTolerant(t *testing.T) {
	payload := []byte(`{"userAgent":"Mozilla/5.0 ?>"}`)
	cases := map[string]string{
		"padded":   base64.URLEncoding.EncodeToString(payload),
		"raw":      base64.RawURLEncoding.EncodeToString(payload),
		"standard": base64.StdEncoding.EncodeToString(payload),
		"spaces":   "  " + base64.URLEncoding.EncodeToString(payload) + "\n",
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeBase64URL(encoded)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if string(got) != string(payload) {
				t.Fatalf("expected %s, got %s", payload, got)
			}
		})
	}
}

func TestDecodeBase64URLRejectsGarbage(t *testing.T) {
	if _, err := DecodeBase64URL("not base64 !!"); err == nil {
		t.Fatalf("expected an error for invalid input")
	}
}
