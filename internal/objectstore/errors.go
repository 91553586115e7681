package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Kind groups backend failures by how the caller should react.
type Kind int

const (
	// KindPermanent covers failures that retrying soon will not fix
	// (access denied, bad request, missing bucket).
	KindPermanent Kind = iota
	// KindNotFound means the object does not exist.
	KindNotFound
	// KindTransient marks a backend that looks degraded or unreachable.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// Error wraps a backend failure with its classification.
type Error struct {
	Kind   Kind
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	target := e.Bucket
	if e.Key != "" {
		target = e.Bucket + "/" + e.Key
	}
	if e.Err == nil {
		return fmt.Sprintf("%s s3://%s: %s", e.Op, target, e.Kind)
	}
	return fmt.Sprintf("%s s3://%s: %v", e.Op, target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err. A nil error is permanent; callers
// are expected to check for nil first.
func KindOf(err error) Kind {
	var objErr *Error
	if errors.As(err, &objErr) {
		return objErr.Kind
	}
	return Classify(err)
}

// IsNotFound reports whether err says the object is absent.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsTransient reports whether err looks like a degraded backend.
func IsTransient(err error) bool { return err != nil && KindOf(err) == KindTransient }

var (
	notFoundCodes = map[string]struct{}{
		"404":       {},
		"NotFound":  {},
		"NoSuchKey": {},
	}
	transientCodes = map[string]struct{}{
		"500":                {},
		"503":                {},
		"RequestTimeout":     {},
		"ServiceUnavailable": {},
		"SlowDown":           {},
		"InternalError":      {},
	}
)

// Classify maps a raw SDK or network error onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return KindNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := notFoundCodes[code]; ok {
			return KindNotFound
		}
		if _, ok := transientCodes[code]; ok {
			return KindTransient
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == http.StatusNotFound:
			return KindNotFound
		case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
			return KindTransient
		default:
			return KindPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindTransient
	}
	return KindPermanent
}

func wrap(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Classify(err), Op: op, Bucket: bucket, Key: key, Err: err}
}
