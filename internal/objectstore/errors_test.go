package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

func responseError(status int, inner error) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      inner,
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"no such key", &types.NoSuchKey{}, KindNotFound},
		{"head not found", fmt.Errorf("operation error: %w", &types.NotFound{}), KindNotFound},
		{"404 code", &smithy.GenericAPIError{Code: "404"}, KindNotFound},
		{"service unavailable", &smithy.GenericAPIError{Code: "ServiceUnavailable"}, KindTransient},
		{"request timeout", &smithy.GenericAPIError{Code: "RequestTimeout"}, KindTransient},
		{"503 code", &smithy.GenericAPIError{Code: "503"}, KindTransient},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, KindTransient},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, KindPermanent},
		{"http 503 unknown code", responseError(http.StatusServiceUnavailable, &smithy.GenericAPIError{Code: "Weird"}), KindTransient},
		{"http 404", responseError(http.StatusNotFound, errors.New("empty body")), KindNotFound},
		{"http 403", responseError(http.StatusForbidden, errors.New("denied")), KindPermanent},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, KindTransient},
		{"deadline", fmt.Errorf("head: %w", context.DeadlineExceeded), KindTransient},
		{"canceled", context.Canceled, KindPermanent},
		{"plain", errors.New("boom"), KindPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorWrapsAndReportsKind(t *testing.T) {
	inner := &smithy.GenericAPIError{Code: "ServiceUnavailable"}
	err := fmt.Errorf("upload: %w", wrap("put", "images", "a/b.tif", inner))

	if !IsTransient(err) {
		t.Fatalf("expected transient, got %s", KindOf(err))
	}
	if IsNotFound(err) {
		t.Fatal("did not expect not-found")
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ServiceUnavailable" {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
	var objErr *Error
	if !errors.As(err, &objErr) || objErr.Key != "a/b.tif" || objErr.Op != "put" {
		t.Fatalf("expected *Error with key, got %#v", objErr)
	}
	if wrap("head", "b", "k", nil) != nil {
		t.Fatal("wrap(nil) should be nil")
	}
	if IsTransient(nil) || IsNotFound(nil) {
		t.Fatal("nil error must not classify")
	}
}
