// Package storage uploads finished videos to S3, degrading to local paths
// when no credentials are configured.
package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/Kira7dn/video-create/internal/config"
	"github.com/Kira7dn/video-create/internal/logger"
)

// UploadError reports a failed object-storage upload.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// putObjectAPI is the slice of the S3 client the uploader needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores finished videos. A zero-configured Uploader passes local
// paths through unchanged.
type Uploader struct {
	settings appconfig.AWSSettings
	client   putObjectAPI
}

// New builds an Uploader. When the AWS settings are incomplete, the returned
// Uploader operates in local pass-through mode; that is not an error.
func New(ctx context.Context, settings appconfig.AWSSettings) (*Uploader, error) {
	u := &Uploader{settings: settings}
	if !settings.Configured() {
		logger.Info("object storage not configured, uploads will return local paths")
		return u, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(settings.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			settings.AccessKeyID, settings.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	u.client = s3.NewFromConfig(cfg)
	return u, nil
}

// Upload stores the file as {prefix}{videoID}.mp4 and returns its public
// URL. Without configuration it returns local://{path}.
func (u *Uploader) Upload(ctx context.Context, path, videoID string) (string, error) {
	if u.client == nil {
		return "local://" + path, nil
	}

	key := u.settings.S3Prefix + videoID + ".mp4"
	f, err := os.Open(path)
	if err != nil {
		return "", &UploadError{Key: key, Err: err}
	}
	defer f.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.settings.S3Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", &UploadError{Key: key, Err: err}
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		u.settings.S3Bucket, u.settings.S3Region, key)
	logger.InfoContext(ctx, "video uploaded", "key", key, "url", url)
	return url, nil
}
