package retry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/localdeck/steward/internal/core/domain"
)

// Classification is the fixed verdict for an error: a stable reason code and
// whether retrying can help.
type Classification struct {
	Code      string
	Retryable bool
}

// Transport backends expose status through these interfaces so classification
// stays independent of any driver package.
type httpStatusError interface {
	HTTPStatus() int
}

type sqlStateError interface {
	SQLState() string
}

// Classify maps an error onto a reason code and retryability. Unrecognized
// errors are non-retryable. Idempotent over already classified errors.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var classified *Error
	if errors.As(err, &classified) {
		return Classification{Code: classified.Code, Retryable: classified.Retryable}
	}

	if errors.Is(err, domain.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return Classification{Code: CodeNoRows}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Code: CodeNetwork, Retryable: true}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return Classification{Code: CodeNetwork, Retryable: true}
	}

	var se sqlStateError
	if errors.As(err, &se) {
		return classifySQLState(se.SQLState())
	}
	var he httpStatusError
	if errors.As(err, &he) {
		return classifyHTTPStatus(he.HTTPStatus())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Classification{Code: CodeNetwork, Retryable: true}
	}

	return classifyMessage(err.Error())
}

func classifySQLState(state string) Classification {
	switch {
	case state == "42501", strings.HasPrefix(state, "28"):
		return Classification{Code: CodePermissionDenied}
	case strings.HasPrefix(state, "22"), strings.HasPrefix(state, "23"):
		return Classification{Code: CodeValidation}
	case strings.HasPrefix(state, "08"), strings.HasPrefix(state, "53"), state == "57P01":
		return Classification{Code: CodeNetwork, Retryable: true}
	}
	return Classification{Code: CodeUnclassified}
}

func classifyHTTPStatus(status int) Classification {
	switch {
	case status == 401 || status == 403:
		return Classification{Code: CodePermissionDenied}
	case status == 404 || status == 406:
		return Classification{Code: CodeNoRows}
	case status == 400 || status == 409 || status == 422:
		return Classification{Code: CodeValidation}
	case status == 408 || status == 425 || status == 429 || status >= 500:
		return Classification{Code: CodeNetwork, Retryable: true}
	}
	return Classification{Code: CodeUnclassified}
}

// classifyMessage is the substring fallback for errors that carry no
// structured status, e.g. after crossing a non-wrapping fmt.Errorf.
func classifyMessage(msg string) Classification {
	s := strings.ToLower(msg)

	switch {
	case strings.Contains(s, "connection reset"),
		strings.Contains(s, "connection refused"),
		strings.Contains(s, "connection closed"),
		strings.Contains(s, "broken pipe"),
		strings.Contains(s, "timeout"),
		strings.Contains(s, "timed out"),
		strings.Contains(s, "deadline exceeded"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "network is unreachable"),
		strings.Contains(s, "tls handshake"):
		return Classification{Code: CodeNetwork, Retryable: true}
	case strings.Contains(s, "permission denied"),
		strings.Contains(s, "not authorized"),
		strings.Contains(s, "unauthorized"),
		strings.Contains(s, "forbidden"),
		strings.Contains(s, "row-level security"):
		return Classification{Code: CodePermissionDenied}
	case strings.Contains(s, "no rows"):
		return Classification{Code: CodeNoRows}
	case strings.Contains(s, "duplicate key"),
		strings.Contains(s, "unique constraint"),
		strings.Contains(s, "violates"),
		strings.Contains(s, "invalid input"):
		return Classification{Code: CodeValidation}
	}
	return Classification{Code: CodeUnclassified}
}

// Wrap classifies err and returns it as an *Error carrying the attempt count.
// Already classified errors keep their code and retryability; only the
// attempt count is updated.
func Wrap(err error, attempts int) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		out := *classified
		out.Attempts = attempts
		return &out
	}

	c := Classify(err)
	return &Error{
		Code:      c.Code,
		Message:   err.Error(),
		Retryable: c.Retryable,
		Attempts:  attempts,
		Detail:    detailOf(err),
		cause:     err,
	}
}

func detailOf(err error) Detail {
	var se sqlStateError
	if errors.As(err, &se) {
		return SQLDetail{State: se.SQLState()}
	}
	var he httpStatusError
	if errors.As(err, &he) {
		d := HTTPDetail{Status: he.HTTPStatus()}
		var bodied interface{ ResponseBody() string }
		if errors.As(err, &bodied) {
			d.Body = bodied.ResponseBody()
		}
		return d
	}
	return OpaqueDetail{Kind: fmt.Sprintf("%T", err)}
}
