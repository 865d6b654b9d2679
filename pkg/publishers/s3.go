package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client defines the minimal subset of the S3 client used by the archive sink.
type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Archive is the object written for one run.
type s3Archive struct {
	ScrapedAt     time.Time `json:"scraped_at"`
	TotalArticles int       `json:"total_articles"`
	Events        []Event   `json:"events"`
}

// s3Publisher archives each run as one JSON object under a prefix.
type s3Publisher struct {
	id     string
	bucket string
	prefix string
	client s3Client
	log    Logger
	now    func() time.Time
}

func newS3Publisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.S3 == nil {
		return nil, fmt.Errorf("publisher %q missing s3 configuration", cfg.ID)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.S3.Region, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
	if err != nil {
		return nil, err
	}

	return &s3Publisher{
		id:     cfg.ID,
		bucket: cfg.S3.Bucket,
		prefix: normalizePrefix(cfg.S3.Prefix),
		client: s3.NewFromConfig(awsCfg),
		log:    ensureLogger(log),
		now:    time.Now,
	}, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (p *s3Publisher) ID() string   { return p.id }
func (p *s3Publisher) Type() string { return TypeS3 }

// Publish stores a single event under its id.
func (p *s3Publisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.put(ctx, p.prefix+"events/"+evt.ID+".json", body)
}

// PublishBatch stores the whole run under a date-partitioned key.
func (p *s3Publisher) PublishBatch(ctx context.Context, events []Event) error {
	ts := p.now().UTC()
	if len(events) > 0 {
		ts = events[0].ScrapedAt
	}

	body, err := json.Marshal(s3Archive{ScrapedAt: ts, TotalArticles: len(events), Events: events})
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	key := fmt.Sprintf("%sruns/%s/articles-%s.json", p.prefix, ts.Format("2006/01/02"), ts.Format("150405"))
	return p.put(ctx, key, body)
}

func (p *s3Publisher) put(ctx context.Context, key string, body []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload object to s3: %w", err)
	}
	p.log.DebugObj("s3 publisher stored object", "publisher_s3_delivery", map[string]any{
		"bucket": p.bucket,
		"key":    key,
		"bytes":  len(body),
	})
	return nil
}
