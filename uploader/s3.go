package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	s3config "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/logger"
)

// Ensure S3Uploader implements Provider interface
var _ Provider = (*S3Uploader)(nil)

// I created an interface so the S3 client can be tested by providing a custom implementation.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Uploader archives files into an S3 bucket. The album becomes part of
// the object key, so grouping needs no creation step and is idempotent
// by construction.
type S3Uploader struct {
	client s3API
	config *config.S3Config
	log    logger.Logger
}

// NewS3Uploader creates a new S3 uploader.
func NewS3Uploader(cfg *config.S3Config, common *config.CommonUploaderConfig, log logger.Logger) (*S3Uploader, error) {
	ctx := context.TODO()

	common.ApplyDefaults()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	// For S3-compatible storage, region is often just a placeholder
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	s3cfg, err := s3config.LoadDefaultConfig(
		ctx,
		s3config.WithRegion(region),
		s3config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		s3config.WithClientLogMode(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	client := s3.NewFromConfig(s3cfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Use path-style addressing for S3-compatible storage
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		client: client,
		config: cfg,
		log:    log,
	}, nil
}

// Upload stores the file under prefix/album/filename, switching to a
// multipart upload when the file exceeds one part.
func (u *S3Uploader) Upload(ctx context.Context, localPath string, album string) (*Result, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := u.objectKey(album, filepath.Base(localPath))

	var token string
	if st.Size() <= u.config.PartSizeBytes {
		token, err = u.putObject(ctx, f, key, st.Size())
	} else {
		token, err = u.multipartUpload(ctx, f, key, st.Size())
	}
	if err != nil {
		return nil, err
	}

	u.log.Debug("Stored %s as s3://%s/%s", localPath, u.config.Bucket, key)
	return &Result{MediaKey: token}, nil
}

func (u *S3Uploader) objectKey(album, name string) string {
	return path.Join(u.config.Prefix, album, name)
}

func (u *S3Uploader) putObject(ctx context.Context, f *os.File, key string, size int64) (string, error) {
	out, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.config.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return confirmationToken(out.ETag, key), nil
}

// multipartUpload streams the file part by part so only one part's worth
// of memory is held at a time. Any failure aborts the pending upload so
// the bucket does not accumulate orphaned parts.
func (u *S3Uploader) multipartUpload(ctx context.Context, f *os.File, key string, size int64) (string, error) {
	create, err := u.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload for %s: %w", key, err)
	}
	uploadID := aws.ToString(create.UploadId)

	partSize := u.config.PartSizeBytes
	numParts := int((size + partSize - 1) / partSize)

	completed := make([]types.CompletedPart, 0, numParts)
	buf := make([]byte, partSize)

	for part := 1; part <= numParts; part++ {
		if err := ctx.Err(); err != nil {
			u.abort(key, uploadID)
			return "", err
		}

		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			u.abort(key, uploadID)
			return "", fmt.Errorf("read part %d of %s: %w", part, key, err)
		}

		out, err := u.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(u.config.Bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(int32(part)),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			u.abort(key, uploadID)
			return "", fmt.Errorf("upload part %d of %s: %w", part, key, err)
		}

		completed = append(completed, types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(int32(part)),
		})
	}

	comp, err := u.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(u.config.Bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		u.abort(key, uploadID)
		return "", fmt.Errorf("complete multipart upload for %s: %w", key, err)
	}

	return confirmationToken(comp.ETag, key), nil
}

// abort runs on its own context so cleanup still happens when the upload
// context is already cancelled.
func (u *S3Uploader) abort(key, uploadID string) {
	_, err := u.client.AbortMultipartUpload(context.Background(), &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.config.Bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		u.log.Warn("Failed to abort multipart upload %s for %s: %v", uploadID, key, err)
	}
}

// Close implements Provider.
func (u *S3Uploader) Close() error { return nil }

func confirmationToken(etag *string, key string) string {
	if t := aws.ToString(etag); t != "" {
		return t
	}
	return key
}
