package observability

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
)

// S3Config controls the generation event archive.
type S3Config struct {
	BucketName    string        `yaml:"bucket_name"`
	Region        string        `yaml:"region"`
	AccessKeyID   string        `yaml:"access_key_id"`
	SecretKey     string        `yaml:"secret_key"`
	Endpoint      string        `yaml:"endpoint"` // custom endpoint for MinIO etc.
	PathPrefix    string        `yaml:"path_prefix"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

// DefaultS3Config reads the archive settings from the environment.
func DefaultS3Config() S3Config {
	return S3Config{
		BucketName:    os.Getenv("S3_BUCKET_NAME"),
		Region:        os.Getenv("AWS_REGION"),
		AccessKeyID:   os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey:     os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Endpoint:      os.Getenv("S3_ENDPOINT"),
		PathPrefix:    os.Getenv("S3_PATH_PREFIX"),
		FlushInterval: 10 * time.Second,
		BatchSize:     100,
	}
}

// S3Callback archives generation events to S3 as date-partitioned JSONL
// objects. Events are buffered and flushed on a timer or when the batch
// fills.
type S3Callback struct {
	config S3Config
	client *s3.Client

	mu    sync.Mutex
	queue []*GenerationEvent

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewS3Callback creates the archiver and starts its flush loop.
func NewS3Callback(cfg S3Config) (*S3Callback, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("s3: bucket_name is required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	cb := &S3Callback{
		config: cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		queue:  make([]*GenerationEvent, 0, cfg.BatchSize),
		stopCh: make(chan struct{}),
	}

	cb.wg.Add(1)
	go cb.flushLoop()

	return cb, nil
}

// Name returns the callback name.
func (s *S3Callback) Name() string {
	return "s3"
}

// LogSuccessEvent queues a success event for archival.
func (s *S3Callback) LogSuccessEvent(ctx context.Context, event *GenerationEvent) error {
	s.enqueue(event)
	return nil
}

// LogFailureEvent queues a failure event for archival.
func (s *S3Callback) LogFailureEvent(ctx context.Context, event *GenerationEvent, err error) error {
	s.enqueue(event)
	return nil
}

// Shutdown stops the flush loop and uploads whatever is still queued.
func (s *S3Callback) Shutdown(ctx context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	return s.flush(ctx)
}

func (s *S3Callback) enqueue(event *GenerationEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	full := len(s.queue) >= s.config.BatchSize
	s.mu.Unlock()

	if full {
		go s.flush(context.Background())
	}
}

func (s *S3Callback) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

func (s *S3Callback) flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil
	}
	events := s.queue
	s.queue = make([]*GenerationEvent, 0, s.config.BatchSize)
	s.mu.Unlock()

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			continue
		}
	}

	key := s.objectKey(time.Now().UTC())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3: upload events: %w", err)
	}
	return nil
}

// objectKey partitions objects Athena-style by date and hour.
func (s *S3Callback) objectKey(t time.Time) string {
	datePrefix := fmt.Sprintf("year=%d/month=%02d/day=%02d/hour=%02d",
		t.Year(), t.Month(), t.Day(), t.Hour())
	filename := fmt.Sprintf("events_%d.jsonl", t.UnixNano())

	if s.config.PathPrefix != "" {
		return path.Join(s.config.PathPrefix, datePrefix, filename)
	}
	return path.Join(datePrefix, filename)
}
