package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// minPartSize is the smallest part S3 accepts for all but the last part.
const minPartSize = 5 << 20

// S3Config holds settings for an S3-compatible bucket (AWS, MinIO, R2).
type S3Config struct {
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	BaseEndpoint  string        // custom endpoint, e.g. http://127.0.0.1:9000
	PublicBaseURL string        // when set, URLs are PublicBaseURL/key instead of presigned
	UsePathStyle  bool          // required by most MinIO deployments
	PartSize      int64         // multipart part size (default and minimum 5MB)
	PresignExpiry time.Duration // lifetime of presigned GET URLs (default 7 days)
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores objects in an S3 bucket. Payloads larger than one part go
// through the multipart (resumable) API, which is aborted on failure so no
// partial object is left in the bucket.
type S3Store struct {
	api     s3API
	presign presignAPI
	cfg     S3Config
}

// NewS3Store builds an S3 client from static credentials.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: S3 bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Store(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Store(api s3API, presign presignAPI, cfg S3Config) *S3Store {
	if cfg.PartSize < minPartSize {
		cfg.PartSize = minPartSize
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = 7 * 24 * time.Hour
	}
	return &S3Store{api: api, presign: presign, cfg: cfg}
}

// Put uploads obj, reporting progress after each part.
func (s *S3Store) Put(ctx context.Context, obj Object, onProgress ProgressFunc) error {
	key, err := CleanKey(obj.Key)
	if err != nil {
		return err
	}
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}
	if obj.Size > 0 && obj.Size <= s.cfg.PartSize {
		return s.putSingle(ctx, key, obj, onProgress)
	}
	return s.putMultipart(ctx, key, obj, onProgress)
}

func (s *S3Store) putSingle(ctx context.Context, key string, obj Object, onProgress ProgressFunc) error {
	data, err := io.ReadAll(io.LimitReader(obj.Body, obj.Size+1))
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	if int64(len(data)) > obj.Size {
		return fmt.Errorf("object %s exceeds declared size %d", key, obj.Size)
	}
	onProgress(0, obj.Size)
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   optional(obj.ContentType),
		CacheControl:  optional(obj.CacheControl),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	onProgress(int64(len(data)), obj.Size)
	return nil
}

func (s *S3Store) putMultipart(ctx context.Context, key string, obj Object, onProgress ProgressFunc) (err error) {
	created, err := s.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:       aws.String(s.cfg.Bucket),
		Key:          aws.String(key),
		ContentType:  optional(obj.ContentType),
		CacheControl: optional(obj.CacheControl),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload %s: %w", key, err)
	}
	uploadID := created.UploadId
	defer func() {
		if err == nil {
			return
		}
		// The caller's context may already be cancelled; the abort must still run.
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if _, abortErr := s.api.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.cfg.Bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		}); abortErr != nil {
			err = errors.Join(err, fmt.Errorf("abort multipart upload: %w", abortErr))
		}
	}()

	total := obj.Size
	if total <= 0 {
		total = -1
	}
	onProgress(0, total)

	var (
		parts []types.CompletedPart
		sent  int64
		buf   = make([]byte, s.cfg.PartSize)
	)
	for partNumber := int32(1); ; partNumber++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := io.ReadFull(obj.Body, buf)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("read part %d: %w", partNumber, readErr)
		}
		if n == 0 && partNumber > 1 {
			break
		}
		out, err := s.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.cfg.Bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			return fmt.Errorf("upload part %d: %w", partNumber, err)
		}
		parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNumber)})
		sent += int64(n)
		onProgress(sent, total)
		if readErr != nil {
			break
		}
	}

	if _, err := s.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.cfg.Bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	}); err != nil {
		return fmt.Errorf("complete multipart upload %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL when a public base is configured, otherwise a
// presigned GET URL.
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.cfg.PublicBaseURL != "" {
		return joinURL(s.cfg.PublicBaseURL, key), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes key from the bucket.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
