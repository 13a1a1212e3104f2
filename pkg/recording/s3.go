package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the slice of the S3 client the store uses. *s3.Client satisfies
// it; tests substitute a fake.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps recordings as S3 objects under a key prefix.
//
// Example usage:
//
//	client := s3.NewFromConfig(cfg)
//	store := recording.NewS3Store(client, "my-bucket", "recordings/")
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store returns a store writing to the given bucket. prefix is
// prepended to every object key and may be empty.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(id string) string {
	return s.prefix + id + Ext
}

// Create returns a writer whose Close uploads the buffered recording in one
// PutObject call. Recordings are compact enough to stage in memory; nothing
// reaches the bucket until Close.
func (s *S3Store) Create(ctx context.Context, id string) (io.WriteCloser, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return &s3Upload{store: s, ctx: ctx, id: id}, nil
}

// Open fetches a stored recording.
func (s *S3Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return out.Body, nil
}

// List pages through the prefix and returns every stored recording.
func (s *S3Store) List(ctx context.Context) ([]Info, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var infos []Info
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("recording: listing bucket: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, Ext) {
				continue
			}
			infos = append(infos, Info{
				ID:      strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), Ext),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

// Remove deletes a stored recording. S3 deletes are idempotent, so removing
// an absent ID is not an error.
func (s *S3Store) Remove(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("recording: removing %s: %w", id, err)
	}
	return nil
}

// s3Upload buffers a recording and uploads it when closed. The Create
// context governs the upload.
type s3Upload struct {
	store  *S3Store
	ctx    context.Context
	id     string
	buf    bytes.Buffer
	closed bool
}

func (u *s3Upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, ErrWriterClosed
	}
	return u.buf.Write(p)
}

func (u *s3Upload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true

	_, err := u.store.client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.store.bucket),
		Key:         aws.String(u.store.key(u.id)),
		Body:        bytes.NewReader(u.buf.Bytes()),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"recorded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("recording: uploading %s: %w", u.id, err)
	}
	return nil
}
