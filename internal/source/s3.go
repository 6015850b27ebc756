/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config configures fetching s3:// scheme MediaSource URLs, built
// around a read-only GetObject fetch path.
type S3Config struct {
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// s3Fetcher lazily constructs an s3.Client on first use — most
// processes never load an s3:// source, so paying AWS config-resolution
// cost at Resolver construction would be wasted work.
type s3Fetcher struct {
	cfg    S3Config
	logger zerolog.Logger

	mu     sync.Mutex
	client *s3.Client
	err    error
}

func newS3Fetcher(cfg S3Config, logger zerolog.Logger) *s3Fetcher {
	return &s3Fetcher{cfg: cfg, logger: logger}
}

func (f *s3Fetcher) clientFor(ctx context.Context) (*s3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil || f.err != nil {
		return f.client, f.err
	}

	var opts []func(*config.LoadOptions) error
	if f.cfg.Region != "" {
		opts = append(opts, config.WithRegion(f.cfg.Region))
	}
	if f.cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(f.cfg.AccessKeyID, f.cfg.SecretAccessKey, f.cfg.SessionToken)))
	}
	if f.cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{URL: f.cfg.Endpoint, HostnameImmutable: true, SigningRegion: f.cfg.Region}, nil
			}
			return aws.Endpoint{}, fmt.Errorf("unknown endpoint requested")
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		f.err = fmt.Errorf("loading AWS config: %w", err)
		return nil, f.err
	}

	f.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if f.cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})
	return f.client, nil
}

// Fetch downloads the full object at an s3://bucket/key URL.
func (f *s3Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	client, err := f.clientFor(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("s3 GetObject s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3 object body: %w", err)
	}
	f.logger.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("fetched s3 source")
	return data, nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing s3 url %q: %w", rawURL, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3:// url: %q", rawURL)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
