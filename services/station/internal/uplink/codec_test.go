package uplink

import (
	"math"
	"net/url"
	"strings"
	"testing"

	"meteostation/errcode"
	"meteostation/services/station/internal/sample"
)

func TestEscapeTokenRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"eyJhbGciOiJIUzI1NiJ9.eyJjaGlwX2lkIjoiMSJ9.abc-_~",
		"a+b/c=d",
		"spaces and \"quotes\"",
		"ünïcødé",
		string([]byte{0x00, 0x7f, 0x80, 0xff}),
	}
	for _, in := range inputs {
		enc := EscapeToken(in)
		for i := 0; i < len(enc); i++ {
			c := enc[i]
			if !unreserved(c) && c != '%' {
				t.Fatalf("EscapeToken(%q) left reserved byte %q in %q", in, c, enc)
			}
		}
		dec, err := url.PathUnescape(enc)
		if err != nil {
			t.Fatalf("unescape %q: %v", enc, err)
		}
		if dec != in {
			t.Fatalf("round trip: %q -> %q -> %q", in, enc, dec)
		}
	}
}

func TestEscapeTokenUpperHex(t *testing.T) {
	if got := EscapeToken("a/b+c=\xff"); got != "a%2Fb%2Bc%3D%FF" {
		t.Fatalf("EscapeToken = %q", got)
	}
	s := "plain.token-_~"
	if EscapeToken(s) != s {
		t.Fatal("unreserved input should pass through unchanged")
	}
}

func TestEncodePayload(t *testing.T) {
	s := sample.MeteoSample{
		Temperature:   21.456,
		Humidity:      55,
		WindSpeed:     12.004,
		WindDirection: 247.5,
		Rainfall:      0.8382,
		Dust:          31.1,
		Pressure:      755.123,
		Altitude:      142.9,
	}
	b, err := EncodePayload(s, "meteo-net")
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	want := `{"temperature":21.46,"humidity":55.00,"wind_speed":12.00,"rainfall":0.8,` +
		`"wind_direction_degrees":247.50,"dust":31.10,"pressure":755.12,"altitude":142.90,"ssid":"meteo-net"}`
	if string(b) != want {
		t.Fatalf("payload\n got %s\nwant %s", b, want)
	}
}

func TestEncodePayloadRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := EncodePayload(sample.MeteoSample{Dust: v}, "x")
		if errcode.Of(err) != errcode.InvalidPayload || !strings.Contains(err.Error(), "dust") {
			t.Fatalf("value %v: got %v", v, err)
		}
	}
}
