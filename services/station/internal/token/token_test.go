package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"meteostation/errcode"
)

var secret = []byte("test-secret")

func TestGenerateStructure(t *testing.T) {
	tok, err := Generate(secret, "240AC4123456")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("want 3 segments, got %d: %q", len(parts), tok)
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token is not unpadded base64url: %q", tok)
	}

	hdr, _ := base64.RawURLEncoding.DecodeString(parts[0])
	if string(hdr) != `{"alg":"HS256","typ":"JWT"}` {
		t.Fatalf("header = %s", hdr)
	}
	payload, _ := base64.RawURLEncoding.DecodeString(parts[1])
	if string(payload) != `{"chip_id":"240AC4123456","valability":"2099-12-31T23:59:59.000000+00:00"}` {
		t.Fatalf("payload = %s", payload)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(parts[0] + "." + parts[1]))
	if want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil)); parts[2] != want {
		t.Fatalf("signature mismatch: %s != %s", parts[2], want)
	}

	parsed, err := jwt.Parse(tok, func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		t.Fatalf("jwt.Parse: %v", err)
	}
	if c := parsed.Claims.(jwt.MapClaims); c["chip_id"] != "240AC4123456" {
		t.Fatalf("claims = %v", c)
	}
}

func TestGenerateRejectsEmptyInputs(t *testing.T) {
	if _, err := Generate(nil, "x"); errcode.Of(err) != errcode.InvalidConfig {
		t.Fatalf("empty secret: %v", err)
	}
	if _, err := Generate(secret, ""); errcode.Of(err) != errcode.InvalidConfig {
		t.Fatalf("empty chip id: %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if _, ok := m.Current(); ok {
		t.Fatal("new manager should hold no token")
	}
	if err := m.Init(nil, "x"); err == nil {
		t.Fatal("Init with empty secret should fail")
	}
	if _, ok := m.Current(); ok {
		t.Fatal("failed Init must not install a token")
	}

	var released [][]byte
	var seen []string
	m.OnRelease = func(old []byte) {
		released = append(released, old)
		seen = append(seen, string(old))
	}

	if err := m.Init(secret, "42"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	first, _ := m.Current()

	if err := m.Replace([]byte("new.token.value")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if cur, _ := m.Current(); cur != "new.token.value" {
		t.Fatalf("current = %q", cur)
	}
	if len(released) != 1 {
		t.Fatalf("released %d buffers, want 1", len(released))
	}
	if seen[0] != first {
		t.Fatalf("OnRelease saw %q, want the previous token", seen[0])
	}
	if !bytes.Equal(released[0], make([]byte, len(first))) {
		t.Fatalf("old buffer not wiped: %q", released[0])
	}
}

func TestReplaceEmptyKeepsToken(t *testing.T) {
	m := NewManager()
	_ = m.Replace([]byte("a.b.c"))
	for _, body := range []string{"", "  \n", `""`} {
		err := m.Replace([]byte(body))
		if errcode.Of(err) != errcode.EmptyToken {
			t.Fatalf("Replace(%q): want empty_token, got %v", body, err)
		}
		if cur, ok := m.Current(); !ok || cur != "a.b.c" {
			t.Fatalf("token changed after rejected replace: %q", cur)
		}
	}
}

func TestReplaceUnquotesJSONString(t *testing.T) {
	m := NewManager()
	if err := m.Replace([]byte("\"x.y.z\"\n")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if cur, _ := m.Current(); cur != "x.y.z" {
		t.Fatalf("current = %q, want x.y.z", cur)
	}
	if err := m.Replace([]byte(`"unterminated`)); errcode.Of(err) != errcode.InvalidPayload {
		t.Fatalf("bad JSON string: %v", err)
	}
}

func TestReplaceDoesNotAliasCaller(t *testing.T) {
	m := NewManager()
	body := []byte("p.q.r")
	_ = m.Replace(body)
	body[0] = 'X'
	if cur, _ := m.Current(); cur != "p.q.r" {
		t.Fatalf("manager aliases caller buffer: %q", cur)
	}
	m.Clear()
	if _, ok := m.Current(); ok {
		t.Fatal("Clear left a token")
	}
}
