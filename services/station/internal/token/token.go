// Package token owns the station's bearer token: the initial self-signed
// HS256 JWT and its replacements issued by the collector.
package token

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"meteostation/errcode"
)

// Validity is the fixed expiry claim carried by station-generated tokens.
const Validity = "2099-12-31T23:59:59.000000+00:00"

// Generate builds header.payload.signature, each part unpadded base64url,
// signed with HMAC-SHA256 over the first two parts.
func Generate(secret []byte, chipID string) (string, error) {
	if len(secret) == 0 {
		return "", &errcode.E{C: errcode.InvalidConfig, Op: "token.generate", Msg: "empty secret"}
	}
	if chipID == "" {
		return "", &errcode.E{C: errcode.InvalidConfig, Op: "token.generate", Msg: "empty chip id"}
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"chip_id":    chipID,
		"valability": Validity,
	})
	s, err := t.SignedString(secret)
	if err != nil {
		return "", errcode.Wrap(errcode.Error, "token.generate", err)
	}
	return s, nil
}

// Manager holds at most one token. Replacing it wipes the previous buffer
// exactly once.
type Manager struct {
	mu  sync.Mutex
	buf []byte

	// OnRelease, when set, observes each buffer just before it is wiped.
	OnRelease func(old []byte)
}

func NewManager() *Manager { return &Manager{} }

// Init installs a freshly generated token. An error here is fatal for the
// uplink: there is nothing to authenticate with.
func (m *Manager) Init(secret []byte, chipID string) error {
	tok, err := Generate(secret, chipID)
	if err != nil {
		return err
	}
	m.install([]byte(tok))
	return nil
}

// Current returns a copy of the held token.
func (m *Manager) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf == nil {
		return "", false
	}
	return string(m.buf), true
}

// Replace swaps in the token carried by a collector response body. A JSON
// string body is unquoted. An empty body is rejected and the held token is
// kept.
func (m *Manager) Replace(body []byte) error {
	tok := bytes.TrimSpace(body)
	if len(tok) > 0 && tok[0] == '"' {
		var s string
		if err := json.Unmarshal(tok, &s); err != nil {
			return &errcode.E{C: errcode.InvalidPayload, Op: "token.replace", Err: err}
		}
		tok = []byte(s)
	}
	if len(tok) == 0 {
		return &errcode.E{C: errcode.EmptyToken, Op: "token.replace"}
	}
	m.install(bytes.Clone(tok))
	return nil
}

// Clear drops the held token.
func (m *Manager) Clear() { m.install(nil) }

func (m *Manager) install(next []byte) {
	m.mu.Lock()
	old := m.buf
	m.buf = next
	m.mu.Unlock()

	if old == nil {
		return
	}
	if m.OnRelease != nil {
		m.OnRelease(old)
	}
	clear(old)
}
