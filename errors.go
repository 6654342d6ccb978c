package codeact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoMessages is returned when a run starts with an empty conversation.
	ErrNoMessages = errors.New("no messages provided")
	// ErrAborted is returned when the caller cancels a run.
	ErrAborted = errors.New("aborted")
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed from the Retry-After header, 0 if absent
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrInput reports a request the loop refuses before executing anything:
// malformed tool arguments, an unknown action, duplicate action names.
type ErrInput struct {
	Message string
}

func (e *ErrInput) Error() string { return e.Message }

// ErrProtocol reports a provider stream that violated the expected shape,
// such as a terminal response without an identifier.
type ErrProtocol struct {
	Message string
}

func (e *ErrProtocol) Error() string { return e.Message }

// ErrorKind returns the short classification carried by error events.
func ErrorKind(err error) string {
	var (
		inputErr    *ErrInput
		protocolErr *ErrProtocol
		httpErr     *ErrHTTP
		llmErr      *ErrLLM
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return "AbortError"
	case errors.Is(err, ErrNoMessages), errors.As(err, &inputErr):
		return "InputError"
	case errors.As(err, &protocolErr):
		return "ProtocolError"
	case errors.As(err, &httpErr):
		return "HTTPError"
	case errors.As(err, &llmErr):
		return "LLMError"
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	}
	return "Error"
}

// ParseRetryAfter parses a Retry-After header given as delay seconds or an
// HTTP date. It returns 0 when the header is absent, malformed or in the past.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
