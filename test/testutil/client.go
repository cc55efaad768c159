package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client returns an S3 client configured for the test server.
func (ts *TestServer) S3Client(t testing.TB) *s3.Client {
	t.Helper()

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			ts.AccessKey,
			ts.SecretKey,
			"",
		)),
	)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(ts.Endpoint)
		o.UsePathStyle = true
	})
}

// CreateTestBucket creates a bucket for testing and returns a cleanup function
// that empties and removes it.
func (ts *TestServer) CreateTestBucket(t testing.TB, name string) func() {
	t.Helper()

	client := ts.S3Client(t)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}

	return func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
			Bucket: aws.String(name),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(name),
					Key:    obj.Key,
				})
			}
		}

		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(name),
		})
	}
}

// PutString stores body under key and returns the ETag.
func (ts *TestServer) PutString(t testing.TB, client *s3.Client, bucket, key, body string) string {
	t.Helper()

	out, err := client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(body),
	})
	if err != nil {
		t.Fatalf("failed to put %s/%s: %v", bucket, key, err)
	}
	return aws.ToString(out.ETag)
}

// GetString reads the object at key.
func (ts *TestServer) GetString(t testing.TB, client *s3.Client, bucket, key string) string {
	t.Helper()

	out, err := client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		t.Fatalf("failed to get %s/%s: %v", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		t.Fatalf("failed to read %s/%s: %v", bucket, key, err)
	}
	return string(data)
}

// ErrorCode returns the S3 error code carried by err, or "" if there is none.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// RandomBucketName generates a random bucket name for testing.
func RandomBucketName() string {
	return "test-bucket-" + randomString(8)
}

// RandomObjectKey generates a random object key for testing.
func RandomObjectKey() string {
	return "test-object-" + randomString(8)
}

func randomString(n int) string {
	b := make([]byte, n/2+1)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
