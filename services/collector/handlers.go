package collector

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

const maxBody = 16 << 10

type claims struct {
	ChipID     string
	Valability string
}

var errClaims = errors.New("missing chip_id")

// decode verifies the jwt query parameter (HS256 only).
func (s *Server) decode(r *http.Request) (claims, error) {
	raw := r.URL.Query().Get("jwt")
	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return claims{}, err
	}
	id, ok := mc["chip_id"].(string)
	if !ok {
		return claims{}, errClaims
	}
	v, _ := mc["valability"].(string)
	return claims{ChipID: id, Valability: v}, nil
}

// validChipID is the registration rule: exactly 15 decimal digits.
func validChipID(id string) bool {
	if len(id) != 15 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	c, err := s.decode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JWT")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blacklist[c.ChipID] {
		writeError(w, http.StatusForbidden, "Chip ID is blacklisted")
		return
	}
	if !validChipID(c.ChipID) {
		s.blacklist[c.ChipID] = true
		s.log.Warn("chip id blacklisted", "chip_id", c.ChipID, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusMethodNotAllowed, "Invalid chip ID sent to black list")
		return
	}
	if _, ok := s.producers[c.ChipID]; !ok {
		s.producers[c.ChipID] = &Producer{ChipID: c.ChipID}
	}
	s.log.Info("producer registered", "chip_id", c.ChipID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Access request submitted"})
}

// IssueToken signs a token for chipID whose validity starts now.
func (s *Server) IssueToken(chipID string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"chip_id":    chipID,
		"valability": s.now().UTC().Format(isoLayout),
	})
	return t.SignedString(s.secret)
}

func (s *Server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	c, err := s.decode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JWT token")
		return
	}
	s.mu.Lock()
	p, known := s.producers[c.ChipID]
	black := s.blacklist[c.ChipID]
	s.mu.Unlock()
	if c.ChipID == "" || !known {
		writeError(w, http.StatusForbidden, "Chip ID not allowed")
		return
	}
	if black {
		writeError(w, http.StatusMethodNotAllowed, "Chip ID is blacklisted")
		return
	}
	tok, err := s.IssueToken(c.ChipID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	s.mu.Lock()
	p.LastGenerated = s.now()
	s.mu.Unlock()
	// the body is a JSON string, quotes included
	writeJSON(w, http.StatusOK, tok)
}

// fresh reports whether a valability stamp is within TokenLifetime. Stamps
// share one fixed-width layout, so they compare as strings.
func (s *Server) fresh(valability string) bool {
	cutoff := s.now().Add(-TokenLifetime).UTC().Format(isoLayout)
	return valability > cutoff
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	c, err := s.decode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JWT token")
		return
	}
	s.mu.Lock()
	_, known := s.producers[c.ChipID]
	black := s.blacklist[c.ChipID]
	s.mu.Unlock()
	if black {
		writeError(w, http.StatusForbidden, "Chip ID is blacklisted")
		return
	}
	if !known || !s.fresh(c.Valability) {
		writeError(w, http.StatusMethodNotAllowed, "Invalid or expired token")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "JSON body is required")
		return
	}
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		writeError(w, http.StatusBadRequest, "JSON body is required")
		return
	}
	ssid, _ := data["ssid"].(string)
	s.store(c.ChipID, strings.TrimSpace(ssid), json.RawMessage(body))
	s.log.Debug("reading stored", "chip_id", c.ChipID, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleProducer(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Producer(chi.URLParam(r, "chipID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown producer")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chipID")
	if _, ok := s.Producer(id); !ok {
		writeError(w, http.StatusNotFound, "unknown producer")
		return
	}
	writeJSON(w, http.StatusOK, s.Readings(id))
}
