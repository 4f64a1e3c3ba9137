package crypto

import (
	"bytes"
	"testing"
)

func TestIdentity_DeterministicAndFixedLength(t *testing.T) {
	t.Parallel()

	a := Identity("wxuin=1; slave_sid=abc")
	b := Identity("wxuin=1; slave_sid=abc")
	c := Identity("wxuin=1; slave_sid=abd")

	if a != b {
		t.Fatalf("identity not deterministic: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("identity collided for different values")
	}
	if len(a) != IdentityLen || len(Identity("x")) != IdentityLen {
		t.Fatalf("identity length=%d, want %d", len(a), IdentityLen)
	}
}

func TestSealer_RoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewSealer("operator-secret")
	if err != nil || !s.Enabled() {
		t.Fatalf("NewSealer: s=%v err=%v", s, err)
	}

	plain := []byte("bizuin=3869765355; data_ticket=zCBm6")
	sealed, err := s.Seal(plain, "id-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatalf("sealed output leaks plaintext")
	}

	got, err := s.Open(sealed, "id-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestSealer_RejectsWrongIdentityAndTamper(t *testing.T) {
	t.Parallel()

	s, _ := NewSealer("k")
	sealed, err := s.Seal([]byte("v"), "id-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := s.Open(sealed, "id-2"); err == nil {
		t.Fatalf("want error when identity differs")
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := s.Open(sealed, "id-1"); err == nil {
		t.Fatalf("want error on tampered blob")
	}

	if _, err := s.Open([]byte{1, 2, 3}, "id-1"); err != ErrSealedTooShort {
		t.Fatalf("want ErrSealedTooShort, got %v", err)
	}
}

func TestSealer_NilPassthrough(t *testing.T) {
	t.Parallel()

	s, err := NewSealer("")
	if err != nil || s != nil {
		t.Fatalf("empty secret: s=%v err=%v", s, err)
	}
	if s.Enabled() {
		t.Fatalf("nil sealer must report disabled")
	}
	out, err := s.Seal([]byte("plain"), "id")
	if err != nil || string(out) != "plain" {
		t.Fatalf("passthrough seal: %q %v", out, err)
	}
	back, err := s.Open(out, "id")
	if err != nil || string(back) != "plain" {
		t.Fatalf("passthrough open: %q %v", back, err)
	}
}
