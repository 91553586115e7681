package testsupport

import (
	"context"
	"io"
	"sync"
	"time"

	"ferry/internal/objectstore"
)

// FakeStorage is an in-memory objectstore.Client. Scripted errors are
// consumed in order before the normal behavior applies.
type FakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	headErrs []error
	putErrs  []error
	// PutHook, when set, runs before every Put under no lock.
	PutHook func(key string)

	heads int
	puts  int
}

// NewFakeStorage returns an empty bucket.
func NewFakeStorage() *FakeStorage {
	return &FakeStorage{objects: map[string][]byte{}}
}

func objectKey(bucket, key string) string { return bucket + "/" + key }

// AddObject stores data under bucket/key.
func (f *FakeStorage) AddObject(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey(bucket, key)] = append([]byte(nil), data...)
}

// Object returns the stored bytes and whether the object exists.
func (f *FakeStorage) Object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectKey(bucket, key)]
	return data, ok
}

// FailHead queues errors returned by the next Head calls.
func (f *FakeStorage) FailHead(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headErrs = append(f.headErrs, errs...)
}

// FailPut queues errors returned by the next Put calls.
func (f *FakeStorage) FailPut(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putErrs = append(f.putErrs, errs...)
}

// Calls returns the number of Head and Put calls seen.
func (f *FakeStorage) Calls() (heads, puts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heads, f.puts
}

func (f *FakeStorage) Head(_ context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads++
	if len(f.headErrs) > 0 {
		err := f.headErrs[0]
		f.headErrs = f.headErrs[1:]
		return objectstore.ObjectInfo{}, &objectstore.Error{Kind: objectstore.KindOf(err), Op: "head", Bucket: bucket, Key: key, Err: err}
	}
	data, ok := f.objects[objectKey(bucket, key)]
	if !ok {
		return objectstore.ObjectInfo{}, &objectstore.Error{Kind: objectstore.KindNotFound, Op: "head", Bucket: bucket, Key: key}
	}
	return objectstore.ObjectInfo{Size: int64(len(data)), LastModified: time.Now()}, nil
}

func (f *FakeStorage) Put(_ context.Context, bucket, key string, body io.Reader, _ int64) error {
	if f.PutHook != nil {
		f.PutHook(key)
	}
	data, readErr := io.ReadAll(body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		return &objectstore.Error{Kind: objectstore.KindOf(err), Op: "put", Bucket: bucket, Key: key, Err: err}
	}
	if readErr != nil {
		return &objectstore.Error{Kind: objectstore.KindPermanent, Op: "put", Bucket: bucket, Key: key, Err: readErr}
	}
	f.objects[objectKey(bucket, key)] = data
	return nil
}

func (f *FakeStorage) HeadBucket(context.Context, string) error { return nil }

// StaticSource hands out the same client with a fixed expiry.
type StaticSource struct {
	Client objectstore.Client
	Expiry time.Time
	Err    error
}

func (s StaticSource) Current(context.Context) (objectstore.Client, time.Time, error) {
	if s.Err != nil {
		return nil, time.Time{}, s.Err
	}
	return s.Client, s.Expiry, nil
}
