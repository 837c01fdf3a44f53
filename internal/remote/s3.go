package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// s3Store treats REMOTEPATCH as bucket/prefix and serves ranged reads with
// plain GetObject calls; chunk planning stays with the transfer engine.
type s3Store struct {
	client *s3.Client
}

func connectS3(ctx context.Context) (Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRetryMode("adaptive"),
	)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return &s3Store{client: s3.NewFromConfig(cfg)}, nil
}

func splitBucketKey(remotePath string) (string, string, error) {
	remotePath = strings.TrimPrefix(remotePath, "s3://")
	remotePath = strings.TrimPrefix(remotePath, "/")
	parts := strings.SplitN(remotePath, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 path %q: expected bucket/key", remotePath)
	}
	key := ""
	if len(parts) > 1 {
		key = parts[1]
	}
	return parts[0], key, nil
}

func (s *s3Store) List(ctx context.Context, dir string) ([]string, error) {
	bucket, prefix, err := splitBucketKey(dir)
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.Size == nil {
				continue
			}
			if *obj.Size == 0 && strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			name := strings.TrimPrefix(*obj.Key, prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	log.Debug().Str("op", "remote/s3").Msgf("Listed %d objects under s3://%s/%s", len(names), bucket, prefix)
	return names, nil
}

func (s *s3Store) Stat(ctx context.Context, remotePath string) (int64, error) {
	bucket, key, err := splitBucketKey(remotePath)
	if err != nil {
		return 0, err
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("error statting s3://%s/%s: %w", bucket, key, err)
	}
	if head.ContentLength == nil {
		return 0, fmt.Errorf("no content length for s3://%s/%s", bucket, key)
	}
	return *head.ContentLength, nil
}

func (s *s3Store) OpenRange(ctx context.Context, remotePath string, offset int64) (io.ReadCloser, error) {
	bucket, key, err := splitBucketKey(remotePath)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting s3://%s/%s: %w", bucket, key, err)
	}
	return result.Body, nil
}

func (s *s3Store) Remove(ctx context.Context, remotePath string) error {
	bucket, key, err := splitBucketKey(remotePath)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *s3Store) Close() error {
	return nil
}
