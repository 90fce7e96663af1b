package storage

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// memS3 is an in-memory S3API.
type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemS3() *memS3 { return &memS3{objects: make(map[string][]byte)} }

func (m *memS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[aws.ToString(in.Key)] = data
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, aws.ToString(in.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := Put(ctx, s, "sim/a_dict_before1.json", []byte(`{"x":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := Put(ctx, s, "sim/Simulated_1_a.xes", []byte("<log/>")); err != nil {
		t.Fatal(err)
	}

	data, err := Get(ctx, s, "sim/a_dict_before1.json")
	if err != nil || string(data) != `{"x":1}` {
		t.Fatalf("Get = %q, %v", data, err)
	}

	ok, err := s.Exists(ctx, "sim/Simulated_1_a.xes")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if ok, _ := s.Exists(ctx, "sim/missing"); ok {
		t.Error("missing key reported present")
	}
	if _, err := s.Reader(ctx, "sim/missing"); !serrors.IsCode(err, serrors.CodeFileNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	keys, err := s.List(ctx, "sim/")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"sim/Simulated_1_a.xes", "sim/a_dict_before1.json"}) {
		t.Errorf("List = %v", keys)
	}

	if err := s.Delete(ctx, "sim/Simulated_1_a.xes"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "sim/Simulated_1_a.xes"); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if ok, _ := s.Exists(ctx, "sim/Simulated_1_a.xes"); ok {
		t.Error("deleted key still present")
	}
}

func TestLocalStore(t *testing.T) {
	s, err := Open(context.Background(), Config{Backend: "local", Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, s)
}

func TestS3Store(t *testing.T) {
	client := newMemS3()
	s := NewS3StoreWithClient(S3Config{Bucket: "logs", Prefix: "runs/"}, client)
	exercise(t, s)

	if _, ok := client.objects["runs/sim/a_dict_before1.json"]; !ok {
		t.Error("prefix not applied to object keys")
	}
	if got := s.URI("x.xes"); got != "s3://logs/runs/x.xes" {
		t.Errorf("URI = %s", got)
	}
}

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"a/b.json":      "a/b.json",
		"/a//b.json":    "a/b.json",
		"../../etc/pwd": "etc/pwd",
		`dir\file.xes`:  "dir/file.xes",
	}
	for in, want := range cases {
		got, err := CleanKey(in)
		if err != nil || got != want {
			t.Errorf("CleanKey(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := CleanKey(""); err == nil {
		t.Error("empty key accepted")
	}
	if _, err := Open(context.Background(), Config{Backend: "ftp"}); !serrors.IsCode(err, serrors.CodeInvalidConfig) {
		t.Errorf("expected invalid config, got %v", err)
	}
}
