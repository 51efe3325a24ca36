package uplink

import (
	"encoding/json"
	"math"
	"strconv"

	"meteostation/errcode"
	"meteostation/services/station/internal/sample"
)

const hexUpper = "0123456789ABCDEF"

func unreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// EscapeToken percent-encodes s for use as a query value: unreserved
// characters pass through, every other byte becomes %XX (upper-case hex).
func EscapeToken(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	out := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			out = append(out, c)
			continue
		}
		out = append(out, '%', hexUpper[c>>4], hexUpper[c&0x0F])
	}
	return string(out)
}

// Payload is the upload body. Field order is the wire order.
type Payload struct {
	Temperature   json.Number `json:"temperature"`
	Humidity      json.Number `json:"humidity"`
	WindSpeed     json.Number `json:"wind_speed"`
	Rainfall      json.Number `json:"rainfall"`
	WindDirection json.Number `json:"wind_direction_degrees"`
	Dust          json.Number `json:"dust"`
	Pressure      json.Number `json:"pressure"`
	Altitude      json.Number `json:"altitude"`
	SSID          string      `json:"ssid"`
}

func fixed(v float64, prec int) (json.Number, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	return json.Number(strconv.FormatFloat(v, 'f', prec, 64)), true
}

// EncodePayload renders a snapshot as the upload JSON: rainfall with one
// decimal, every other measurement with two.
func EncodePayload(s sample.MeteoSample, ssid string) ([]byte, error) {
	var p Payload
	p.SSID = ssid
	fields := []struct {
		dst  *json.Number
		f    sample.Field
		prec int
	}{
		{&p.Temperature, sample.Temperature, 2},
		{&p.Humidity, sample.Humidity, 2},
		{&p.WindSpeed, sample.WindSpeed, 2},
		{&p.Rainfall, sample.Rainfall, 1},
		{&p.WindDirection, sample.WindDirection, 2},
		{&p.Dust, sample.Dust, 2},
		{&p.Pressure, sample.Pressure, 2},
		{&p.Altitude, sample.Altitude, 2},
	}
	for _, fd := range fields {
		n, ok := fixed(s.Get(fd.f), fd.prec)
		if !ok {
			return nil, &errcode.E{C: errcode.InvalidPayload, Op: "uplink.encode", Msg: fd.f.String() + " is not finite"}
		}
		*fd.dst = n
	}
	return json.Marshal(p)
}
