package s3compat

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumasuke/fakes3/test/testutil"
)

func TestPutObject(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	result, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String("a/b.txt"),
		Body:        strings.NewReader("hello"),
		ContentType: aws.String("text/plain"),
	})
	require.NoError(t, err)
	assert.Equal(t, `"5d41402abc4b2a76b9719d911017c592"`, aws.ToString(result.ETag))
}

func TestPutObjectContentMD5(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	content := []byte("content with digest")
	sum := md5.Sum(content)

	result, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("digest"),
		Body:       bytes.NewReader(content),
		ContentMD5: aws.String(base64.StdEncoding.EncodeToString(sum[:])),
	})
	require.NoError(t, err)
	assert.Equal(t, `"`+hex.EncodeToString(sum[:])+`"`, aws.ToString(result.ETag))
}

func TestPutObjectBucketNotFound(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	_, err := ts.S3Client(t).PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String("non-existent-bucket"),
		Key:    aws.String("key"),
		Body:   strings.NewReader("data"),
	})
	require.Error(t, err)
	assert.Equal(t, "NoSuchBucket", testutil.ErrorCode(err))
}

func TestPutObjectOverwrite(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	ts.PutString(t, client, bucketName, "key", "first version")
	ts.PutString(t, client, bucketName, "key", "second")

	assert.Equal(t, "second", ts.GetString(t, client, bucketName, "key"))
}

func TestGetObject(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := testutil.RandomObjectKey()
	content := "Hello, World! This is test content."

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	require.NoError(t, err)

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	require.NoError(t, err)

	assert.Equal(t, content, string(body))
	assert.Equal(t, "text/plain", aws.ToString(result.ContentType))
	assert.Equal(t, int64(len(content)), aws.ToInt64(result.ContentLength))
	assert.Equal(t, "bytes", aws.ToString(result.AcceptRanges))
	assert.Empty(t, aws.ToString(result.ContentDisposition))
	assert.NotNil(t, result.LastModified)
	assert.NotEmpty(t, result.ETag)
}

func TestGetObjectAttachmentDisposition(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String("archives/2026/report.zip"),
		Body:        strings.NewReader("PK"),
		ContentType: aws.String("application/zip"),
	})
	require.NoError(t, err)

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("archives/2026/report.zip"),
	})
	require.NoError(t, err)
	defer result.Body.Close()

	assert.Equal(t, "attachment; filename=report.zip", aws.ToString(result.ContentDisposition))
}

func TestGetObjectNotFound(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	_, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("non-existent-key"),
	})
	require.Error(t, err)

	var noSuchKey *types.NoSuchKey
	assert.ErrorAs(t, err, &noSuchKey)
}

func TestGetObjectRange(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := testutil.RandomObjectKey()
	ts.PutString(t, client, bucketName, key, "0123456789")

	testCases := []struct {
		name         string
		rangeHeader  string
		want         string
		contentRange string
	}{
		{"head", "bytes=0-4", "01234", "bytes 0-4/10"},
		{"open ended", "bytes=5-", "56789", "bytes 5-9/10"},
		{"suffix", "bytes=-3", "789", "bytes 7-9/10"},
		{"single byte", "bytes=9-9", "9", "bytes 9-9/10"},
		{"end clamped", "bytes=8-100", "89", "bytes 8-9/10"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucketName),
				Key:    aws.String(key),
				Range:  aws.String(tc.rangeHeader),
			})
			require.NoError(t, err)
			defer result.Body.Close()

			body, err := io.ReadAll(result.Body)
			require.NoError(t, err)

			assert.Equal(t, tc.want, string(body))
			assert.Equal(t, tc.contentRange, aws.ToString(result.ContentRange))
			assert.Equal(t, int64(len(tc.want)), aws.ToInt64(result.ContentLength))
		})
	}
}

func TestGetObjectRangeNotSatisfiable(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	ts.PutString(t, client, bucketName, "short", "0123456789")

	_, err := client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("short"),
		Range:  aws.String("bytes=10-20"),
	})
	require.Error(t, err)
	assert.Equal(t, "InvalidRange", testutil.ErrorCode(err))
}

func TestHeadObject(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := testutil.RandomObjectKey()
	content := "Hello, World!"
	etag := ts.PutString(t, client, bucketName, key, content)

	result, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), aws.ToInt64(result.ContentLength))
	assert.Equal(t, etag, aws.ToString(result.ETag))
	assert.NotNil(t, result.LastModified)
}

func TestHeadObjectNotFound(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("non-existent-key"),
	})
	require.Error(t, err)

	var notFound *types.NotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestDeleteObject(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := "nested/dir/" + testutil.RandomObjectKey()
	ts.PutString(t, client, bucketName, key, "to be deleted")

	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)

	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.Error(t, err)
}

func TestDeleteObjectNotFound(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	// S3 returns success even if object doesn't exist
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("non-existent-key"),
	})
	require.NoError(t, err)
}

func TestDeleteObjects(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	ts.PutString(t, client, bucketName, "one", "1")
	ts.PutString(t, client, bucketName, "dir/two", "2")
	ts.PutString(t, client, bucketName, "keep", "3")

	result, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucketName),
		Delete: &types.Delete{
			Objects: []types.ObjectIdentifier{
				{Key: aws.String("one")},
				{Key: aws.String("dir/two")},
				{Key: aws.String("missing")},
			},
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 3)
	assert.Empty(t, result.Errors)

	list, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)
	require.Len(t, list.Contents, 1)
	assert.Equal(t, "keep", aws.ToString(list.Contents[0].Key))
}

func TestPutGetLargeObject(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	key := testutil.RandomObjectKey()

	// 1MiB spans many read chunks on the test server.
	content := make([]byte, 1024*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	require.NoError(t, err)

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	require.NoError(t, err)

	assert.Equal(t, len(content), len(body))
	assert.True(t, bytes.Equal(content, body))
}
