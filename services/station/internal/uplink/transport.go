package uplink

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"meteostation/errcode"
)

// DefaultTimeout bounds one request, connect to last body byte.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is kept.
const maxBody = 4 << 10

// Response is what the state machine needs from one exchange.
type Response struct {
	Status int
	Body   []byte
}

// Transport posts one JSON body to an endpoint with the token attached.
type Transport interface {
	Post(ctx context.Context, endpoint, token string, body []byte) (Response, error)
}

type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.httpClient = c }
}

// WithInsecureTLS skips server certificate verification; the collector
// normally runs with a self-signed certificate on the local network.
func WithInsecureTLS() HTTPOption {
	return func(t *HTTPTransport) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		t.httpClient.Transport = tr
	}
}

// NewHTTPTransport creates a transport rooted at baseURL
// (e.g. "https://192.168.50.1:5500").
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *HTTPTransport) Post(ctx context.Context, endpoint, token string, body []byte) (Response, error) {
	u := t.baseURL + endpoint + "?jwt=" + EscapeToken(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Response{Status: StatusTransportError}, errcode.Wrap(errcode.Transport, "uplink.post", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Response{Status: StatusTransportError}, errcode.Wrap(errcode.Transport, "uplink.post", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		// The status is still meaningful to the state machine.
		return Response{Status: resp.StatusCode}, errcode.Wrap(errcode.Transport, "uplink.read", err)
	}
	return Response{Status: resp.StatusCode, Body: b}, nil
}
