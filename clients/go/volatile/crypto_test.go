package volatile

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ct, err := Encrypt("hola", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(ct, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if pt != "hola" {
		t.Fatalf("expected 'hola', got %q", pt)
	}
}

func TestWireFormatStructure(t *testing.T) {
	ct, err := Encrypt("test", "pw")
	if err != nil {
		t.Fatal(err)
	}
	wire, err := base64.StdEncoding.DecodeString(ct)
	if err != nil {
		t.Fatal(err)
	}
	// 32 (salt) + 12 (nonce) + 4 (plaintext) + 16 (tag) = 64
	if len(wire) != 64 {
		t.Fatalf("expected wire length 64, got %d", len(wire))
	}
}

func TestFreshSaltAndNoncePerCall(t *testing.T) {
	ct1, _ := Encrypt("same", "pw")
	ct2, _ := Encrypt("same", "pw")
	if ct1 == ct2 {
		t.Fatal("ciphertexts should differ for same plaintext and password")
	}

	wire1, _ := base64.StdEncoding.DecodeString(ct1)
	wire2, _ := base64.StdEncoding.DecodeString(ct2)
	if bytes.Equal(wire1[:saltSize], wire2[:saltSize]) {
		t.Fatal("salt reused across encryptions")
	}
	if bytes.Equal(wire1[saltSize:saltSize+nonceSize], wire2[saltSize:saltSize+nonceSize]) {
		t.Fatal("nonce reused across encryptions")
	}

	pt1, _ := Decrypt(ct1, "pw")
	pt2, _ := Decrypt(ct2, "pw")
	if pt1 != "same" || pt2 != "same" {
		t.Fatal("both should decrypt to 'same'")
	}
}

func TestWrongPasswordFails(t *testing.T) {
	ct, _ := Encrypt("secret", "right")

	_, err := Decrypt(ct, "wrong")
	if err == nil {
		t.Fatal("expected error with wrong password")
	}
	if !ErrCrypto(err) {
		t.Fatalf("expected CryptoError, got %T", err)
	}
}

func TestTamperAnyByteFails(t *testing.T) {
	ct, _ := Encrypt("hola", "pw")
	wire, _ := base64.StdEncoding.DecodeString(ct)

	for i := range wire {
		tampered := make([]byte, len(wire))
		copy(tampered, wire)
		tampered[i] ^= 0x01

		pt, err := Decrypt(base64.StdEncoding.EncodeToString(tampered), "pw")
		if err == nil {
			t.Fatalf("byte %d: tampered envelope decrypted to %q", i, pt)
		}
	}
}

func TestWrongPasswordAndTamperSameErrorShape(t *testing.T) {
	ct, _ := Encrypt("secret", "right")

	_, wrongErr := Decrypt(ct, "wrong")

	wire, _ := base64.StdEncoding.DecodeString(ct)
	wire[len(wire)-1] ^= 0xFF
	_, tamperErr := Decrypt(base64.StdEncoding.EncodeToString(wire), "right")

	if wrongErr == nil || tamperErr == nil {
		t.Fatal("expected both decryptions to fail")
	}
	if wrongErr.Error() != tamperErr.Error() {
		t.Fatalf("error shapes differ: %q vs %q", wrongErr, tamperErr)
	}
}

func TestTruncatedEnvelope(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, saltSize+nonceSize+tagSize))
	_, err := Decrypt(short, "pw")
	if err == nil {
		t.Fatal("expected error with truncated envelope")
	}
	if !ErrCrypto(err) {
		t.Fatalf("expected CryptoError, got %T", err)
	}
}

func TestInvalidBase64(t *testing.T) {
	_, err := Decrypt("not!!base64", "pw")
	if err == nil {
		t.Fatal("expected error with invalid base64")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	_, salt, err := DeriveKey("pw", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(salt) != saltSize {
		t.Fatalf("expected %d-byte salt, got %d", saltSize, len(salt))
	}

	key1, _, err := DeriveKey("pw", salt)
	if err != nil {
		t.Fatal(err)
	}
	key2, _, err := DeriveKey("pw", salt)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key1, key2) {
		t.Fatal("derivation not deterministic for fixed (password, salt)")
	}
	if len(key1) != keySize {
		t.Fatalf("expected %d-byte key, got %d", keySize, len(key1))
	}
}

func TestDeriveKeyDistinctSalts(t *testing.T) {
	key1, salt1, _ := DeriveKey("pw", nil)
	key2, salt2, _ := DeriveKey("pw", nil)
	if bytes.Equal(salt1, salt2) {
		t.Fatal("random salts collided")
	}
	if bytes.Equal(key1, key2) {
		t.Fatal("different salts produced the same key")
	}
}

func TestEmptyPasswordRejected(t *testing.T) {
	if _, _, err := DeriveKey("", nil); err == nil || !ErrCrypto(err) {
		t.Fatal("expected CryptoError for empty password in DeriveKey")
	}
	if _, err := Encrypt("hola", ""); err == nil || !ErrCrypto(err) {
		t.Fatal("expected CryptoError for empty password in Encrypt")
	}
	if _, err := Decrypt("whatever", ""); err == nil || !ErrCrypto(err) {
		t.Fatal("expected CryptoError for empty password in Decrypt")
	}
}

func TestEmptyPlaintextRejected(t *testing.T) {
	_, err := Encrypt("", "pw")
	if err == nil || !ErrCrypto(err) {
		t.Fatal("expected CryptoError for empty plaintext")
	}
}

func TestUnicodePlaintext(t *testing.T) {
	msg := "Hola \U0001F30D❤️ 日本語"
	ct, err := Encrypt(msg, "pw")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(ct, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if pt != msg {
		t.Fatalf("expected %q, got %q", msg, pt)
	}
}

func TestLargeMessage(t *testing.T) {
	msg := strings.Repeat("A", 8000)
	ct, err := Encrypt(msg, "pw")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(ct, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if pt != msg {
		t.Fatal("large message round-trip failed")
	}
}

func TestMediaRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x01, 0xFF, 0xFE, 0x42}
	ct, err := EncryptMedia(raw, "pw")
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecryptMedia(ct, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("media round-trip failed")
	}
}

func TestMediaSizeCeiling(t *testing.T) {
	_, err := EncryptMedia(make([]byte, maxMediaBytes+1), "pw")
	if err == nil || !ErrCrypto(err) {
		t.Fatal("expected CryptoError for oversized media payload")
	}

	if _, err := EncryptMedia(make([]byte, 1024), "pw"); err != nil {
		t.Fatalf("1 KiB payload should be accepted: %v", err)
	}
}
