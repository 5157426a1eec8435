package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const (
	accessTestKey     = "connection-test.txt"
	accessTestContent = "S3 connection test successful"

	// DeleteObjects accepts at most this many keys per request.
	deleteBatchSize = 1000
)

// S3 stores objects in S3 buckets.
type S3 struct {
	client     *s3.S3
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
	tempDir    string
	verify     bool
	log        *slog.Logger
}

var _ Store = (*S3)(nil)

// NewS3 creates an S3 store with static credentials from opts.
func NewS3(opts Options, log *slog.Logger) (*S3, error) {
	awsCfg := &aws.Config{
		Region: aws.String(opts.Region),
	}
	if opts.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	}
	if opts.EndpointURL != "" {
		awsCfg.Endpoint = aws.String(opts.EndpointURL)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3{
		client:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
		tempDir:    opts.TempDir,
		verify:     opts.VerifyUpload,
		log:        log,
	}, nil
}

// Open streams the object body.
func (s *S3) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3(p)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Streaming object from S3", "bucket", bucket, "key", key)
	obj, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start download stream for %s: %w", p, err)
	}
	return obj.Body, nil
}

// Fetch downloads the object into a temp file.
func (s *S3) Fetch(ctx context.Context, p string) (string, func(), error) {
	bucket, key, err := ParseS3(p)
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp(s.tempDir, "download_*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	release := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			s.log.Warn("Failed to remove temp file", "path", f.Name(), "error", err)
		}
	}

	s.log.Info("Downloading from S3", "bucket", bucket, "key", key)
	n, err := s.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		release()
		return "", nil, fmt.Errorf("failed to download %s: %w", p, err)
	}
	s.log.Debug("Downloaded object", "key", key, "bytes", n)
	return f.Name(), release, nil
}

// Put uploads a local file and, when verification is on, checks it with HeadObject.
func (s *S3) Put(ctx context.Context, localFile, p string) (int64, error) {
	bucket, key, err := ParseS3(p)
	if err != nil {
		return 0, err
	}
	file, err := os.Open(localFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open temp file for upload: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to get file info: %w", err)
	}

	result, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
		Metadata: map[string]*string{
			"size-bytes": aws.String(strconv.FormatInt(info.Size(), 10)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload to S3: %w", err)
	}
	s.log.Debug("Uploaded to S3", "key", key, "location", result.Location)

	if s.verify {
		_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return 0, fmt.Errorf("upload verification failed for %s: %w", p, err)
		}
	}
	return info.Size(), nil
}

// List returns s3a-style URLs of every object under prefix.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	bucket, keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	scheme, _, _ := strings.Cut(prefix, "://")
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = scheme + "://" + bucket + "/" + k
	}
	return out, nil
}

func (s *S3) listKeys(ctx context.Context, prefix string) (string, []string, error) {
	bucket, key, err := ParseS3(prefix)
	if err != nil {
		return "", nil, err
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}

	var keys []string
	err = s.client.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{Bucket: aws.String(bucket), Prefix: aws.String(key)},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return !lastPage
		})
	if err != nil {
		return "", nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}
	return bucket, keys, nil
}

// RemoveAll deletes every object under prefix in batches.
func (s *S3) RemoveAll(ctx context.Context, prefix string) error {
	bucket, keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		objects := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects under %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("failed to delete %s: %s", aws.StringValue(e.Key), aws.StringValue(e.Message))
		}
	}
	s.log.Debug("Removed existing objects", "prefix", prefix, "count", len(keys))
	return nil
}

// CheckAccess uploads and deletes a small test object under root.
func (s *S3) CheckAccess(ctx context.Context, root string) error {
	bucket, key, err := ParseS3(root)
	if err != nil {
		return err
	}
	testKey := accessTestKey
	if key != "" {
		testKey = strings.TrimSuffix(key, "/") + "/" + accessTestKey
	}

	s.log.Info("Testing S3 access", "bucket", bucket)
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(testKey),
		Body:   strings.NewReader(accessTestContent),
	})
	if err != nil {
		return fmt.Errorf("S3 upload test failed: %w", err)
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		s.log.Warn("Failed to clean up test file", "key", testKey, "error", err)
	}
	return nil
}
