package provider

import (
	"errors"
	"fmt"
)

// ErrUpstream matches every *Error with errors.Is.
var ErrUpstream = errors.New("upstream provider error")

type ErrorKind string

const (
	KindTimeout ErrorKind = "timeout"
	KindHTTP    ErrorKind = "http"
	KindParse   ErrorKind = "parse"
	// KindRemote is a well-formed {"error": ...} reply.
	KindRemote ErrorKind = "remote"
)

const maxDetailsLen = 400

// Error is the normalized failure of a provider call.
type Error struct {
	Kind       ErrorKind
	Action     string
	StatusCode int
	Message    string
	Details    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s (http %d)", e.Action, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("provider %s: %s", e.Action, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrUpstream
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
