package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/iterator"
)

// Archive is long-term bundle storage: published snapshots other nodes
// can fetch and import.
type Archive interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Publish exports a signed snapshot and writes it to the archive under key.
func Publish(ctx context.Context, archive Archive, key string, b *Bundle) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}
	return archive.Put(ctx, key, data)
}

// Fetch retrieves and decodes a bundle from the archive.
func Fetch(ctx context.Context, archive Archive, key string) (*Bundle, error) {
	data, err := archive.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// FSArchive stores bundles as files under a root directory.
type FSArchive struct {
	root string
}

// NewFSArchive creates root if needed and returns a filesystem archive.
func NewFSArchive(root string) (*FSArchive, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("bundle: create archive dir: %w", err)
	}
	return &FSArchive{root: root}, nil
}

func (a *FSArchive) path(key string) string {
	return filepath.Join(a.root, filepath.FromSlash(key))
}

func (a *FSArchive) Put(_ context.Context, key string, data []byte) error {
	p := a.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (a *FSArchive) Get(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(a.path(key))
}

func (a *FSArchive) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(a.root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// S3API is the slice of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Archive stores bundles in an S3 bucket.
type S3Archive struct {
	client S3API
	bucket string
}

// NewS3Archive builds an archive over a bucket using the ambient AWS
// credential chain.
func NewS3Archive(ctx context.Context, bucket string) (*S3Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundle: load aws config: %w", err)
	}
	return &S3Archive{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// NewS3ArchiveWithClient wraps an existing client. Used by tests.
func NewS3ArchiveWithClient(client S3API, bucket string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket}
}

func (a *S3Archive) Put(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (a *S3Archive) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (a *S3Archive) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}

// GCSArchive stores bundles in a Google Cloud Storage bucket.
type GCSArchive struct {
	bucket *gcs.BucketHandle
}

// NewGCSArchive builds an archive over a GCS bucket using ambient
// application-default credentials.
func NewGCSArchive(ctx context.Context, bucket string) (*GCSArchive, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundle: gcs client: %w", err)
	}
	return &GCSArchive{bucket: client.Bucket(bucket)}, nil
}

func (a *GCSArchive) Put(ctx context.Context, key string, data []byte) error {
	w := a.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (a *GCSArchive) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := a.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (a *GCSArchive) List(ctx context.Context, prefix string) ([]string, error) {
	it := a.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
	sort.Strings(keys)
	return keys, nil
}
