package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object is one stored object in an ObjectStore.
type Object struct {
	Body     []byte
	Metadata map[string]string
}

// ObjectStore is an in-memory S3 stand-in implementing the GetObject and
// PutObject calls the remote cache tier makes. Keys are "bucket/key".
type ObjectStore struct {
	mu      sync.Mutex
	objects map[string]Object

	// GetErr and PutErr, when set, are returned by every call.
	GetErr error
	PutErr error

	gets int
	puts int
}

// NewObjectStore creates an empty store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string]Object)}
}

func objectPath(bucket, key *string) string {
	var b, k string
	if bucket != nil {
		b = *bucket
	}
	if key != nil {
		k = *key
	}
	return b + "/" + k
}

// GetObject returns the stored object or a NoSuchKey error.
func (s *ObjectStore) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	obj, ok := s.objects[objectPath(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	meta := make(map[string]string, len(obj.Metadata))
	for k, v := range obj.Metadata {
		meta[k] = v
	}
	return &s3.GetObjectOutput{
		Body:     io.NopCloser(bytes.NewReader(obj.Body)),
		Metadata: meta,
	}, nil
}

// PutObject stores the object body and metadata.
func (s *ObjectStore) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	if in.Body == nil {
		return nil, errors.New("put object: nil body")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		meta[k] = v
	}
	s.objects[objectPath(in.Bucket, in.Key)] = Object{Body: body, Metadata: meta}
	return &s3.PutObjectOutput{}, nil
}

// Seed stores an object directly, bypassing call counters.
func (s *ObjectStore) Seed(bucket, key string, body []byte, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = Object{Body: body, Metadata: metadata}
}

// Lookup returns a stored object.
func (s *ObjectStore) Lookup(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket+"/"+key]
	return obj, ok
}

// Gets returns how many GetObject calls were made.
func (s *ObjectStore) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// Puts returns how many PutObject calls were made.
func (s *ObjectStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
