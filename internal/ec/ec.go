// Package ec defines Broker's closed error-code taxonomy and the error
// value that carries it across process and language boundaries.
package ec

import "fmt"

// Code is one of Broker's error codes. The ordinal layout mirrors the
// original broker::ec enum so that ["error", code, context] round-trips
// stay numerically stable across implementations.
type Code uint8

const (
	None Code = iota
	Unspecified
	PeerIncompatible
	PeerInvalid
	PeerUnavailable
	PeerDisconnectDuringHandshake
	PeerTimeout
	MasterExists
	NoSuchMaster
	NoSuchKey
	RequestTimeout
	TypeClash
	InvalidData
	BackendFailure
	StaleData
	CannotOpenFile
	CannotWriteFile
	InvalidTopicKey
	EndOfFile
	InvalidTag
	InvalidStatus
)

var names = map[Code]string{
	None:                          "none",
	Unspecified:                   "unspecified",
	PeerIncompatible:              "peer_incompatible",
	PeerInvalid:                   "peer_invalid",
	PeerUnavailable:               "peer_unavailable",
	PeerDisconnectDuringHandshake: "peer_disconnect_during_handshake",
	PeerTimeout:                   "peer_timeout",
	MasterExists:                  "master_exists",
	NoSuchMaster:                  "no_such_master",
	NoSuchKey:                     "no_such_key",
	RequestTimeout:                "request_timeout",
	TypeClash:                     "type_clash",
	InvalidData:                   "invalid_data",
	BackendFailure:                "backend_failure",
	StaleData:                     "stale_data",
	CannotOpenFile:                "cannot_open_file",
	CannotWriteFile:               "cannot_write_file",
	InvalidTopicKey:               "invalid_topic_key",
	EndOfFile:                     "end_of_file",
	InvalidTag:                    "invalid_tag",
	InvalidStatus:                 "invalid_status",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "unspecified"
}

// HasEndpointInfo reports whether errors with code c may carry an
// EndpointInfo in their context, per the original ec_has_network_info_v trait.
func (c Code) HasEndpointInfo() bool {
	switch c {
	case PeerInvalid, PeerUnavailable, PeerDisconnectDuringHandshake:
		return true
	default:
		return false
	}
}

// EndpointInfo identifies the remote peer involved in a networking error.
type EndpointInfo struct {
	Node    string
	Network string
}

// Error carries a Code, an optional EndpointInfo, and an optional message.
type Error struct {
	Code    Code
	Info    *EndpointInfo
	Message string
}

func New(code Code) *Error {
	return &Error{Code: code}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WithInfo(code Code, info EndpointInfo, message string) *Error {
	return &Error{Code: code, Info: &info, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

// Is reports whether err wraps an *Error with the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
