package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// S3Config configures the S3 store.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every key (e.g., "runs/").
	Prefix string
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Timeout bounds each request.
	Timeout time.Duration
}

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps artifacts in a bucket.
type S3Store struct {
	cfg    S3Config
	client S3API
}

// NewS3Store loads the AWS configuration and creates a client.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, serrors.New(serrors.CodeInvalidConfig, "s3 storage requires a bucket")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreWithClient(cfg, client), nil
}

// NewS3StoreWithClient uses an existing client.
func NewS3StoreWithClient(cfg S3Config, client S3API) *S3Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &S3Store{cfg: cfg, client: client}
}

func (s *S3Store) key(key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return s.cfg.Prefix + k, nil
}

// URI implements Store.
func (s *S3Store) URI(key string) string {
	k, _ := s.key(key)
	return "s3://" + s.cfg.Bucket + "/" + k
}

// Writer implements Store. The object is buffered and uploaded on Close.
func (s *S3Store) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	return &s3Writer{ctx: ctx, store: s, key: k}, nil
}

type s3Writer struct {
	bytes.Buffer
	ctx   context.Context
	store *S3Store
	key   string
}

func (w *s3Writer) Close() error {
	ctx, cancel := context.WithTimeout(w.ctx, w.store.cfg.Timeout)
	defer cancel()

	_, err := w.store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.store.cfg.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.Bytes()),
	})
	if err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "put object").WithContext("key", w.key)
	}
	return nil
}

// Reader implements Store.
func (s *S3Store) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, serrors.FileNotFound(s.URI(key))
		}
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "get object").WithContext("key", k)
	}
	return out.Body, nil
}

// Exists implements Store.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	k, err := s.key(key)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(k),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, serrors.Wrap(err, serrors.CodeStorageFailed, "head object").WithContext("key", k)
}

// List implements Store.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys  []string
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(s.cfg.Prefix + prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "list objects").WithContext("prefix", prefix)
		}
		for _, obj := range out.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.cfg.Prefix))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "delete object").WithContext("key", k)
	}
	return nil
}
