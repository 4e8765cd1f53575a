package utils

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"

	"memory-match/models"
)

// ArchiveConfig locates the S3 compatible bucket finished matches go to.
type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Archiver uploads match snapshots to object storage.
type Archiver struct {
	client *s3.Client
	bucket string
}

func NewArchiver(ctx context.Context, cfg ArchiveConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Archiver{client: client, bucket: cfg.Bucket}, nil
}

// Put stores a JSON document under key.
func (a *Archiver) Put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// ArchiveKey returns matches/YYYY/MM/DD/<a>-vs-<b>-<id>.json, dated by the
// finish time.
func ArchiveKey(m *models.Match) string {
	at := m.CreatedAt
	if m.FinishedAt != nil {
		at = *m.FinishedAt
	}
	at = at.UTC()
	return fmt.Sprintf("matches/%04d/%02d/%02d/%s-vs-%s-%s.json",
		at.Year(), int(at.Month()), at.Day(),
		playerSlug(m.PlayerA), playerSlug(m.PlayerB), m.ID)
}

func playerSlug(p models.MatchPlayer) string {
	if s := slug.Make(p.DisplayName); s != "" {
		return s
	}
	return slug.Make(p.ID)
}
