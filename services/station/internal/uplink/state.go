package uplink

import "net/http"

// State is the uplink protocol phase.
type State uint8

const (
	StateSend State = iota
	StateRefreshToken
	StateRequestAccess
)

func (s State) String() string {
	switch s {
	case StateSend:
		return "send"
	case StateRefreshToken:
		return "refresh_token"
	case StateRequestAccess:
		return "request_access"
	}
	return "unknown"
}

// Endpoint is the collector path served in each state.
func (s State) Endpoint() string {
	switch s {
	case StateRefreshToken:
		return "/generate_token"
	case StateRequestAccess:
		return "/request"
	}
	return "/get_data"
}

// Action is the side effect attached to a transition.
type Action uint8

const (
	ActNone Action = iota
	ActLog
	// ActReplaceToken installs the response body as the new token.
	ActReplaceToken
)

// StatusTransportError stands in for "no HTTP status" (dial, timeout, TLS).
const StatusTransportError = -1

type transition struct {
	next State
	act  Action
}

// table is state × status → (next, action). Statuses not listed keep the
// state with no action.
var table = map[State]map[int]transition{
	StateSend: {
		http.StatusOK:               {StateSend, ActNone},
		http.StatusForbidden:        {StateSend, ActLog},
		http.StatusMethodNotAllowed: {StateRefreshToken, ActLog},
		http.StatusBadRequest:       {StateSend, ActLog},
	},
	StateRefreshToken: {
		http.StatusOK:               {StateSend, ActReplaceToken},
		http.StatusForbidden:        {StateRequestAccess, ActLog},
		http.StatusMethodNotAllowed: {StateRefreshToken, ActLog},
	},
	StateRequestAccess: {
		http.StatusOK:               {StateRefreshToken, ActNone},
		http.StatusMethodNotAllowed: {StateRequestAccess, ActLog},
		http.StatusBadRequest:       {StateRequestAccess, ActLog},
	},
}

// Next looks up the transition for a response status.
func Next(s State, status int) (State, Action) {
	if tr, ok := table[s][status]; ok {
		return tr.next, tr.act
	}
	return s, ActNone
}
