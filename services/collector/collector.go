// Package collector is an in-memory implementation of the telemetry
// collector the station uplinks to. It speaks the same protocol (JWT in the
// jwt query parameter, status codes driving the station's state machine) and
// backs the end-to-end tests and the cmd/collector binary.
package collector

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TokenLifetime is how long an issued token is accepted by /get_data.
const TokenLifetime = 24 * time.Hour

// isoLayout matches the valability timestamps the collector issues.
const isoLayout = "2006-01-02T15:04:05.000000-07:00"

// Producer is a registered station.
type Producer struct {
	ChipID        string    `json:"chip_id"`
	SSID          string    `json:"ssid,omitempty"`
	LastGenerated time.Time `json:"last_generated_token,omitempty"`
	Readings      int       `json:"readings"`
}

type Server struct {
	secret []byte
	now    func() time.Time
	log    *slog.Logger
	keep   int

	mu        sync.Mutex
	producers map[string]*Producer
	blacklist map[string]bool
	data      map[string][]json.RawMessage
}

type Option func(*Server)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

func WithLogger(log *slog.Logger) Option { return func(s *Server) { s.log = log } }

// WithRetention bounds the readings kept per producer.
func WithRetention(n int) Option { return func(s *Server) { s.keep = n } }

func New(secret string, opts ...Option) *Server {
	s := &Server{
		secret:    []byte(secret),
		now:       time.Now,
		log:       slog.Default(),
		keep:      256,
		producers: map[string]*Producer{},
		blacklist: map[string]bool{},
		data:      map[string][]json.RawMessage{},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "collector")
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/request", s.handleRequest)
	r.Post("/generate_token", s.handleGenerateToken)
	r.Post("/get_data", s.handleGetData)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/producers/{chipID}", s.handleProducer)
	r.Get("/producers/{chipID}/readings", s.handleReadings)
	return r
}

// AddProducer registers chipID as if it had requested access.
func (s *Server) AddProducer(chipID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.producers[chipID]; !ok {
		s.producers[chipID] = &Producer{ChipID: chipID}
	}
}

func (s *Server) Blacklist(chipID string) {
	s.mu.Lock()
	s.blacklist[chipID] = true
	s.mu.Unlock()
}

// Producer returns a copy of the registration for chipID.
func (s *Server) Producer(chipID string) (Producer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.producers[chipID]
	if !ok {
		return Producer{}, false
	}
	return *p, true
}

func (s *Server) IsBlacklisted(chipID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist[chipID]
}

// Readings returns the stored payloads for chipID, oldest first.
func (s *Server) Readings(chipID string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.data[chipID]...)
}

func (s *Server) store(chipID, ssid string, body json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.producers[chipID]
	if p == nil {
		return
	}
	p.Readings++
	if ssid != "" {
		p.SSID = ssid
	}
	d := append(s.data[chipID], body)
	if s.keep > 0 && len(d) > s.keep {
		d = d[len(d)-s.keep:]
	}
	s.data[chipID] = d
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
