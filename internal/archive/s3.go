package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"psync-go/internal/config"
	"psync-go/internal/psync"
)

// S3Archive stores the archive in an S3 bucket under an optional prefix:
//
//	<prefix>/content/<checksum>
//	<prefix>/metadata/<id>.json
//
// Uploads stream through the SDK's upload manager so large videos never
// sit in memory.
type S3Archive struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ psync.Archive = (*S3Archive)(nil)

// NewS3Archive creates an S3 archive from configuration. Credentials fall
// back to the ambient AWS chain when no static keys are configured; a
// custom endpoint (minio and friends) forces path-style addressing.
func NewS3Archive(cfg config.ArchiveConfig) (*S3Archive, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
	}, nil
}

// PutContent stores content under its checksum. Idempotent: an existing
// object is left untouched and the reader is drained.
func (a *S3Archive) PutContent(checksum string, r io.Reader, size int64) error {
	ctx := context.Background()
	key := a.key("content", checksum)

	exists, err := a.objectExists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if size >= 0 && written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading content %s: %w", checksum, err)
	}
	return nil
}

// PutMetadata stores an asset's metadata record.
func (a *S3Archive) PutMetadata(id string, metadata []byte) error {
	_, err := a.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key("metadata", id+".json")),
		Body:        bytes.NewReader(metadata),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading metadata for %s: %w", id, err)
	}
	return nil
}

// GetContent retrieves content by checksum and writes it to w.
func (a *S3Archive) GetContent(checksum string, w io.Writer) error {
	resp, err := a.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key("content", checksum)),
	})
	if err != nil {
		return fmt.Errorf("fetching content %s: %w", checksum, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading content %s: %w", checksum, err)
	}
	return nil
}

// GetMetadata retrieves an asset's metadata record.
func (a *S3Archive) GetMetadata(id string) ([]byte, error) {
	resp, err := a.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key("metadata", id+".json")),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", id, err)
	}
	return data, nil
}

// ValidateSetup verifies the bucket is reachable with the configured
// credentials.
func (a *S3Archive) ValidateSetup() error {
	_, err := a.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", a.bucket, err)
	}
	return nil
}

// objectExists checks for an object without fetching it.
func (a *S3Archive) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking for object %s: %w", key, err)
	}
	return true, nil
}

func (a *S3Archive) key(parts ...string) string {
	key := ""
	if a.prefix != "" {
		key = a.prefix + "/"
	}
	for i, p := range parts {
		if i > 0 {
			key += "/"
		}
		key += p
	}
	return key
}
