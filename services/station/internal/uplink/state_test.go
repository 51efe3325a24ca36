package uplink

import "testing"

func TestTransitionTable(t *testing.T) {
	const transportErr = StatusTransportError
	cases := []struct {
		from   State
		status int
		next   State
		act    Action
	}{
		{StateSend, 200, StateSend, ActNone},
		{StateSend, 403, StateSend, ActLog},
		{StateSend, 405, StateRefreshToken, ActLog},
		{StateSend, 400, StateSend, ActLog},
		{StateSend, 500, StateSend, ActNone},
		{StateSend, transportErr, StateSend, ActNone},

		{StateRefreshToken, 200, StateSend, ActReplaceToken},
		{StateRefreshToken, 403, StateRequestAccess, ActLog},
		{StateRefreshToken, 405, StateRefreshToken, ActLog},
		{StateRefreshToken, 400, StateRefreshToken, ActNone},
		{StateRefreshToken, 502, StateRefreshToken, ActNone},
		{StateRefreshToken, transportErr, StateRefreshToken, ActNone},

		{StateRequestAccess, 200, StateRefreshToken, ActNone},
		{StateRequestAccess, 403, StateRequestAccess, ActNone},
		{StateRequestAccess, 405, StateRequestAccess, ActLog},
		{StateRequestAccess, 400, StateRequestAccess, ActLog},
		{StateRequestAccess, 404, StateRequestAccess, ActNone},
		{StateRequestAccess, transportErr, StateRequestAccess, ActNone},
	}
	for _, tc := range cases {
		next, act := Next(tc.from, tc.status)
		if next != tc.next || act != tc.act {
			t.Errorf("%s/%d: got (%s,%d) want (%s,%d)", tc.from, tc.status, next, act, tc.next, tc.act)
		}
	}
}

func TestStateNamesAndEndpoints(t *testing.T) {
	for s, want := range map[State][2]string{
		StateSend:          {"send", "/get_data"},
		StateRefreshToken:  {"refresh_token", "/generate_token"},
		StateRequestAccess: {"request_access", "/request"},
	} {
		if s.String() != want[0] || s.Endpoint() != want[1] {
			t.Errorf("state %d: got (%s,%s) want %v", s, s.String(), s.Endpoint(), want)
		}
	}
	if State(9).String() != "unknown" {
		t.Error("unknown state name")
	}
}
