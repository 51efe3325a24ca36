package uplink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meteostation/errcode"
)

func TestHTTPTransportPost(t *testing.T) {
	const tok = "aa.bb+/=.cc"
	var gotQuery, gotCT, gotReqID, gotBody, gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCT = r.Header.Get("Content-Type")
		gotReqID = r.Header.Get("X-Request-ID")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":"Invalid or expired token","code":405}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL + "/")
	resp, err := tr.Post(context.Background(), "/get_data", tok, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if resp.Status != http.StatusMethodNotAllowed || !strings.Contains(string(resp.Body), "expired") {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotMethod != http.MethodPost || gotPath != "/get_data" {
		t.Fatalf("request line: %s %s", gotMethod, gotPath)
	}
	if gotQuery != "jwt=aa.bb%2B%2F%3D.cc" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotCT != "application/json" || gotReqID == "" {
		t.Fatalf("headers: content-type=%q request-id=%q", gotCT, gotReqID)
	}
	if gotBody != `{"a":1}` {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestHTTPTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	resp, err := tr.Post(context.Background(), "/get_data", "t", nil)
	if errcode.Of(err) != errcode.Transport || resp.Status != StatusTransportError {
		t.Fatalf("timeout: resp=%+v err=%v", resp, err)
	}

	bad := NewHTTPTransport("http://127.0.0.1:1")
	if _, err := bad.Post(context.Background(), "/x", "t", nil); errcode.Of(err) != errcode.Transport {
		t.Fatalf("refused: %v", err)
	}
}

func TestHTTPTransportInsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	strict := NewHTTPTransport(srv.URL)
	if _, err := strict.Post(context.Background(), "/", "t", nil); err == nil {
		t.Fatal("self-signed certificate should be rejected by default")
	}
	lax := NewHTTPTransport(srv.URL, WithInsecureTLS())
	resp, err := lax.Post(context.Background(), "/", "t", nil)
	if err != nil || resp.Status != http.StatusOK {
		t.Fatalf("insecure post: resp=%+v err=%v", resp, err)
	}
}
