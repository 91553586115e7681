package objectstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type recordedPut struct {
	path   string
	length int64
	body   []byte
}

func newRecordingServer(t *testing.T) (*httptest.Server, func() []recordedPut) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []recordedPut
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, recordedPut{path: r.URL.Path, length: r.ContentLength, body: body})
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedPut {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedPut(nil), puts...)
	}
}

func newTestS3Client(endpoint string) *S3Client {
	api := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(endpoint),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider("AKIA", "secret", ""),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
	return NewS3Client(api, 0)
}

func TestS3ClientPutSendsContentLength(t *testing.T) {
	srv, puts := newRecordingServer(t)
	client := newTestS3Client(srv.URL)
	payload := bytes.Repeat([]byte("x"), 2048)

	if err := client.Put(context.Background(), "scans", "acq-1/0001.tif", bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got := puts()
	if len(got) != 1 {
		t.Fatalf("expected one PUT, got %d", len(got))
	}
	if got[0].path != "/scans/acq-1/0001.tif" {
		t.Fatalf("path = %q", got[0].path)
	}
	if got[0].length != int64(len(payload)) {
		t.Fatalf("content length = %d, want %d", got[0].length, len(payload))
	}
	if !bytes.Equal(got[0].body, payload) {
		t.Fatalf("body mismatch: got %d bytes", len(got[0].body))
	}
}
