package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/ini.v1"

	"ferry/internal/config"
	"ferry/internal/logging"
)

// Source builds a fresh Client together with the expiry of the credentials
// it was built from. A zero expiry means the expiry is unknown.
type Source interface {
	Current(ctx context.Context) (Client, time.Time, error)
}

// S3Source builds SDK clients from the storage configuration.
type S3Source struct {
	endpoint        string
	region          string
	profile         string
	credentialsFile string
	accessKeyID     string
	secretAccessKey string
	pathStyle       bool
	partSize        int64
	logger          *slog.Logger
}

// fallbackRegion is used for S3-compatible endpoints that ignore regions.
const fallbackRegion = "us-east-1"

// NewS3Source returns a Source for the [storage] section of cfg.
func NewS3Source(cfg *config.Config, logger *slog.Logger) *S3Source {
	return &S3Source{
		endpoint:        cfg.Storage.EndpointURL,
		region:          cfg.Storage.Region,
		profile:         cfg.Storage.Profile,
		credentialsFile: cfg.Storage.CredentialsFile,
		accessKeyID:     cfg.Storage.AccessKeyID,
		secretAccessKey: cfg.Storage.SecretAccessKey,
		pathStyle:       cfg.Storage.PathStyle,
		partSize:        int64(cfg.Storage.PartSizeMB) * 1024 * 1024,
		logger:          logging.NewComponentLogger(logger, "objectstore"),
	}
}

// StaticCredentials reports whether the source ignores the credentials file.
func (s *S3Source) StaticCredentials() bool {
	return s.accessKeyID != "" && s.secretAccessKey != ""
}

// Current loads the SDK configuration from scratch so rotated credentials on
// disk are picked up, then reads their expiry.
func (s *S3Source) Current(ctx context.Context) (Client, time.Time, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if s.region != "" {
		opts = append(opts, awsconfig.WithRegion(s.region))
	}
	if s.StaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.accessKeyID, s.secretAccessKey, ""),
		))
	} else {
		if s.credentialsFile != "" {
			opts = append(opts, awsconfig.WithSharedCredentialsFiles([]string{s.credentialsFile}))
		}
		if s.profile != "" && s.profile != "default" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(s.profile))
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = fallbackRegion
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.endpoint != "" {
			o.BaseEndpoint = aws.String(s.endpoint)
		}
		o.UsePathStyle = s.pathStyle
	})

	var expiry time.Time
	if !s.StaticCredentials() {
		expiry, err = ReadExpiry(s.credentialsFile, s.profile)
		if err != nil {
			logging.WarnWithContext(s.logger, "credential expiry unreadable; client will be rebuilt on every use",
				"credential_expiry_unreadable",
				logging.String("path", s.credentialsFile),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "write an RFC 3339 expiration value in the credentials profile"),
			)
			expiry = time.Time{}
		}
	}
	return NewS3Client(api, s.partSize), expiry, nil
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ReadExpiry returns the "expiration" value of profile in an AWS shared
// credentials file. A missing file, profile or key yields the zero time and no
// error. Timestamps without an offset are read as local time.
func ReadExpiry(path, profile string) (time.Time, error) {
	if path == "" {
		return time.Time{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	file, err := ini.Load(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse credentials file: %w", err)
	}
	if profile == "" {
		profile = "default"
	}
	section, err := file.GetSection(profile)
	if err != nil {
		return time.Time{}, nil
	}
	if !section.HasKey("expiration") {
		return time.Time{}, nil
	}
	raw := strings.TrimSpace(section.Key("expiration").String())
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range expiryLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("expiration %q: unrecognized timestamp", raw)
}
