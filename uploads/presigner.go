// Package uploads hands out presigned object storage URLs so clients can upload
// post images directly, without streaming file bodies through the API.
package uploads

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/user/memories-go/config"
)

// Presigner produces a URL that authorizes a single PUT of key with the given content type.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
}

// S3Presigner presigns PutObject requests against one bucket.
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	ttl    time.Duration
}

// NewS3Presigner loads AWS credentials from the default chain (env, shared config, role)
// and pins the region from cfg.
func NewS3Presigner(ctx context.Context, cfg *config.UploadConfig) (*S3Presigner, error) {
	if cfg == nil || !cfg.Configured() {
		return nil, errors.New("uploads: bucket and region must be configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &S3Presigner{
		client: s3.NewPresignClient(s3.NewFromConfig(awsCfg)),
		bucket: cfg.Bucket,
		ttl:    ttl,
	}, nil
}

func (p *S3Presigner) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
