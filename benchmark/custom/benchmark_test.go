package custom

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kumasuke/fakes3/test/testutil"
)

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getS3Client returns a client for BENCHMARK_ENDPOINT when set, otherwise for an
// in-process server on a temporary data directory.
func getS3Client(b *testing.B) *s3.Client {
	b.Helper()

	endpoint := os.Getenv("BENCHMARK_ENDPOINT")
	if endpoint == "" {
		ts := testutil.NewTestServer(b)
		return ts.S3Client(b)
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			getEnv("BENCHMARK_ACCESS_KEY", "fakes3"),
			getEnv("BENCHMARK_SECRET_KEY", "fakes3"),
			"",
		)),
	)
	if err != nil {
		b.Fatalf("failed to load config: %v", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}

// randomBytes generates random data of size n.
func randomBytes(n int) []byte {
	data := make([]byte, n)
	if _, err := rand.Read(data); err != nil {
		panic(fmt.Sprintf("failed to generate random data: %v", err))
	}
	return data
}

// setupBucket creates a bucket and registers cleanup.
func setupBucket(b *testing.B, client *s3.Client) string {
	b.Helper()
	ctx := context.Background()
	bucketName := getEnv("BENCHMARK_BUCKET", testutil.RandomBucketName())

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		b.Fatalf("failed to create bucket: %v", err)
	}

	b.Cleanup(func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucketName),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}

		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	})

	return bucketName
}

func putObject(b *testing.B, client *s3.Client, bucket, key string, data []byte) {
	b.Helper()
	_, err := client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		b.Fatalf("failed to put object: %v", err)
	}
}

func benchmarkPut(b *testing.B, size int) {
	client := getS3Client(b)
	bucketName := setupBucket(b, client)
	data := randomBytes(size)

	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		putObject(b, client, bucketName, fmt.Sprintf("object-%d", i), data)
	}
}

func benchmarkGet(b *testing.B, size int, rangeHeader string) {
	client := getS3Client(b)
	bucketName := setupBucket(b, client)
	putObject(b, client, bucketName, "benchmark-object", randomBytes(size))
	ctx := context.Background()

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("benchmark-object"),
	}
	if rangeHeader != "" {
		input.Range = aws.String(rangeHeader)
	}

	get := func() int64 {
		result, err := client.GetObject(ctx, input)
		if err != nil {
			b.Fatalf("failed to get object: %v", err)
		}
		defer result.Body.Close()
		n, err := io.Copy(io.Discard, result.Body)
		if err != nil {
			b.Fatalf("failed to read object: %v", err)
		}
		return n
	}

	b.SetBytes(get())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		get()
	}
}

// BenchmarkPutObject_1KB benchmarks uploading 1KB objects.
func BenchmarkPutObject_1KB(b *testing.B) { benchmarkPut(b, 1024) }

// BenchmarkPutObject_1MB benchmarks uploading 1MB objects.
func BenchmarkPutObject_1MB(b *testing.B) { benchmarkPut(b, 1024*1024) }

// BenchmarkGetObject_1KB benchmarks downloading 1KB objects.
func BenchmarkGetObject_1KB(b *testing.B) { benchmarkGet(b, 1024, "") }

// BenchmarkGetObject_1MB benchmarks downloading 1MB objects.
func BenchmarkGetObject_1MB(b *testing.B) { benchmarkGet(b, 1024*1024, "") }

// BenchmarkGetObjectRange benchmarks a 64KB window from the middle of a 4MB object.
func BenchmarkGetObjectRange(b *testing.B) {
	benchmarkGet(b, 4*1024*1024, "bytes=2097152-2162687")
}

// BenchmarkListObjectsV2 benchmarks listing a bucket of 100 objects under 10 prefixes.
func BenchmarkListObjectsV2(b *testing.B) {
	client := getS3Client(b)
	bucketName := setupBucket(b, client)
	ctx := context.Background()
	data := randomBytes(1024)

	for i := 0; i < 100; i++ {
		putObject(b, client, bucketName, fmt.Sprintf("dir-%d/list-object-%03d", i%10, i), data)
	}

	b.Run("flat", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket: aws.String(bucketName),
			}); err != nil {
				b.Fatalf("failed to list objects: %v", err)
			}
		}
	})

	b.Run("delimiter", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:    aws.String(bucketName),
				Delimiter: aws.String("/"),
			}); err != nil {
				b.Fatalf("failed to list objects: %v", err)
			}
		}
	})
}

// BenchmarkMultipartUpload benchmarks 16MB multipart upload with 5MB parts.
func BenchmarkMultipartUpload(b *testing.B) {
	client := getS3Client(b)
	bucketName := setupBucket(b, client)

	ctx := context.Background()
	objectSize := 16 * 1024 * 1024
	partSize := 5 * 1024 * 1024
	data := randomBytes(objectSize)

	b.SetBytes(int64(objectSize))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("multipart-object-%d", i)

		createResp, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket: aws.String(bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			b.Fatalf("failed to create multipart upload: %v", err)
		}

		var completedParts []types.CompletedPart
		partNumber := int32(1)
		for offset := 0; offset < objectSize; offset += partSize {
			end := min(offset+partSize, objectSize)

			uploadResp, err := client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(bucketName),
				Key:        aws.String(key),
				PartNumber: aws.Int32(partNumber),
				UploadId:   createResp.UploadId,
				Body:       bytes.NewReader(data[offset:end]),
			})
			if err != nil {
				b.Fatalf("failed to upload part: %v", err)
			}

			completedParts = append(completedParts, types.CompletedPart{
				ETag:       uploadResp.ETag,
				PartNumber: aws.Int32(partNumber),
			})
			partNumber++
		}

		_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(bucketName),
			Key:      aws.String(key),
			UploadId: createResp.UploadId,
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: completedParts,
			},
		})
		if err != nil {
			b.Fatalf("failed to complete multipart upload: %v", err)
		}
	}
}
