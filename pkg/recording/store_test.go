package recording

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecording(t *testing.T, store Store, id, payload string) {
	t.Helper()
	wc, err := store.Create(context.Background(), id)
	require.NoError(t, err)
	_, err = io.WriteString(wc, payload)
	require.NoError(t, err)
	require.NoError(t, wc.Close())
}

func readRecording(t *testing.T, store Store, id string) string {
	t.Helper()
	rc, err := store.Open(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestNewIDLooksLikeUUID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 36)
	assert.Equal(t, 4, strings.Count(id, "-"))
	assert.NotEqual(t, id, NewID())
}

func TestFSStoreRoundTrip(t *testing.T) {
	store := NewFSStore(t.TempDir() + "/recordings")
	ctx := context.Background()

	writeRecording(t, store, "aaa", "first")
	writeRecording(t, store, "bbb", "second")
	assert.Equal(t, "first", readRecording(t, store, "aaa"))
	assert.Equal(t, "second", readRecording(t, store, "bbb"))

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "aaa", infos[0].ID)
	assert.Equal(t, "bbb", infos[1].ID)
	assert.Equal(t, int64(5), infos[0].Size)

	require.NoError(t, store.Remove(ctx, "aaa"))
	infos, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "bbb", infos[0].ID)
}

func TestFSStoreMissingRecording(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Open(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Remove(ctx, "nope"), ErrNotFound)

	infos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestFSStoreEmptyDirListsNothing(t *testing.T) {
	store := NewFSStore(t.TempDir() + "/never-created")
	infos, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestStoreRejectsEscapingIDs(t *testing.T) {
	stores := map[string]Store{
		"fs": NewFSStore(t.TempDir()),
		"s3": NewS3Store(newFakeS3(), "bucket", "rec/"),
	}
	bad := []string{"", "..", "a/b", ".hidden"}

	for name, store := range stores {
		for _, id := range bad {
			_, err := store.Create(context.Background(), id)
			assert.ErrorIs(t, err, ErrBadID, "%s Create(%q)", name, id)
			_, err = store.Open(context.Background(), id)
			assert.ErrorIs(t, err, ErrBadID, "%s Open(%q)", name, id)
		}
	}
}

// fakeS3 is an in-memory S3API for store tests.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	contents := make([]types.Object, 0, len(keys))
	now := time.Now()
	for _, k := range keys {
		contents = append(contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(now),
		})
	}
	return &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(false),
		KeyCount:    aws.Int32(int32(len(contents))),
	}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := NewS3Store(fake, "bucket", "rec/")
	ctx := context.Background()

	writeRecording(t, store, "aaa", "first")
	writeRecording(t, store, "bbb", "second")

	// Objects land under the prefix with the container extension.
	_, ok := fake.objects["rec/aaa"+Ext]
	assert.True(t, ok, "object key missing prefix or extension: %v", fake.objects)

	assert.Equal(t, "first", readRecording(t, store, "aaa"))

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "aaa", infos[0].ID)
	assert.Equal(t, int64(5), infos[0].Size)

	require.NoError(t, store.Remove(ctx, "aaa"))
	infos, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "bbb", infos[0].ID)

	_, err = store.Open(ctx, "aaa")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StoreUploadsOnCloseOnly(t *testing.T) {
	fake := newFakeS3()
	store := NewS3Store(fake, "bucket", "")

	wc, err := store.Create(context.Background(), "pending")
	require.NoError(t, err)
	_, err = wc.Write([]byte("data"))
	require.NoError(t, err)
	assert.Empty(t, fake.objects, "upload happened before Close")

	require.NoError(t, wc.Close())
	assert.Len(t, fake.objects, 1)

	_, err = wc.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrWriterClosed)
}
