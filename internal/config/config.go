package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full service configuration, read from the environment
type Config struct {
	Service    Service    `envconfig:"SERVICE"`
	Storage    Storage    `envconfig:"STORAGE"`
	Queue      Queue      `envconfig:"QUEUE"`
	SQS        SQS        `envconfig:"SQS"`
	ClickHouse ClickHouse `envconfig:"CLICKHOUSE"`
	NATS       NATS       `envconfig:"NATS"`
	Valkey     Valkey     `envconfig:"VALKEY"`
	Worker     Worker     `envconfig:"WORKER"`
	Delivery   Delivery   `envconfig:"DELIVERY"`
	Archive    Archive    `envconfig:"ARCHIVE"`
	OTel       OTel       `envconfig:"OTEL"`
}

type Service struct {
	Name            string        `split_words:"true" default:"event-sourcing-service"`
	Environment     string        `split_words:"true" default:"development"`
	LogLevel        string        `split_words:"true"`
	APIPort         string        `split_words:"true" default:"8080"`
	HealthCheckPort string        `split_words:"true" default:"8081"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`

	// EmbeddedWorkers runs the worker pool inside the API process
	EmbeddedWorkers bool `split_words:"true" default:"true"`
}

// Storage selects the event store backend: memory, postgres or sqlite
type Storage struct {
	Driver          string        `split_words:"true" default:"memory"`
	DSN             string        `split_words:"true"`
	SRVName         string        `split_words:"true"`
	Host            string        `split_words:"true"`
	Port            int           `split_words:"true"`
	User            string        `split_words:"true"`
	Password        string        `split_words:"true"`
	Database        string        `split_words:"true" default:"events"`
	SSLMode         string        `split_words:"true" default:"disable"`
	MaxOpenConns    int           `split_words:"true" default:"10"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"1h"`
	AutoMigrate     bool          `split_words:"true" default:"true"`
}

// Queue selects the processing queue transport: memory or sqs
type Queue struct {
	Backend  string `split_words:"true" default:"memory"`
	Capacity int    `split_words:"true" default:"10000"`
}

type SQS struct {
	Endpoint          string `split_words:"true"`
	QueueURL          string `split_words:"true"`
	Region            string `split_words:"true" default:"us-east-1"`
	MaxMessages       int32  `split_words:"true" default:"10"`
	VisibilityTimeout int32  `split_words:"true" default:"30"`
}

type ClickHouse struct {
	Enabled            bool   `split_words:"true" default:"false"`
	Host               string `split_words:"true" default:"localhost"`
	Port               string `split_words:"true" default:"9000"`
	DB                 string `split_words:"true" default:"events"`
	User               string `split_words:"true" default:""`
	Password           string `split_words:"true" default:""`
	MaxOpenConns       int    `split_words:"true" default:"5"`
	MaxIdleConns       int    `split_words:"true" default:"2"`
	ConnMaxLifetimeSec int    `split_words:"true" default:"3600"`
	UseTLS             bool   `split_words:"true" default:"false"`
	BlockBufferSize    uint8  `split_words:"true" default:"10"`
}

type NATS struct {
	URL           string `split_words:"true"`
	SubjectPrefix string `split_words:"true" default:"events.signals"`
	ClientName    string `split_words:"true" default:"event-sourcing-service"`
}

type Valkey struct {
	Host     string        `split_words:"true"`
	Port     string        `split_words:"true" default:"6379"`
	Password string        `split_words:"true"`
	DB       int           `split_words:"true" default:"0"`
	TTL      time.Duration `split_words:"true" default:"10m"`
}

type Worker struct {
	Count            int           `split_words:"true" default:"4"`
	PollTimeout      time.Duration `split_words:"true" default:"1s"`
	ProcessorTimeout time.Duration `split_words:"true" default:"30s"`
	MaxRetries       int           `split_words:"true" default:"3"`
	RetryBatchSize   int           `split_words:"true" default:"100"`
	RetryInterval    time.Duration `split_words:"true" default:"30s"`
	// PendingGrace is how long an event may stay pending before it is enqueued again
	PendingGrace time.Duration `split_words:"true" default:"1m"`
	// ProcessingLease must exceed the slowest processor run; longer-claimed events are released as failed
	ProcessingLease time.Duration `split_words:"true" default:"5m"`
	// SubscriptionRefresh is how often the subscription index is reloaded from the store
	SubscriptionRefresh time.Duration `split_words:"true" default:"5s"`
}

type Delivery struct {
	Timeout    time.Duration `split_words:"true" default:"5s"`
	Workers    int           `split_words:"true" default:"4"`
	BufferSize int           `split_words:"true" default:"1000"`
	RateLimit  float64       `split_words:"true" default:"50"`
	RateBurst  int           `split_words:"true" default:"10"`
	// MaxAttempts above 1 enables exponential retry for webhook delivery
	MaxAttempts int           `split_words:"true" default:"1"`
	BaseBackoff time.Duration `split_words:"true" default:"200ms"`
}

type Archive struct {
	Enabled   bool          `split_words:"true" default:"false"`
	Retention time.Duration `split_words:"true" default:"720h"`
	Interval  time.Duration `split_words:"true" default:"1h"`
	BatchSize int           `split_words:"true" default:"500"`
}

type OTel struct {
	Endpoint    string  `split_words:"true"`
	Insecure    bool    `split_words:"true" default:"true"`
	SampleRatio float64 `split_words:"true" default:"1"`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q: must be memory, postgres or sqlite", c.Storage.Driver)
	}

	switch c.Queue.Backend {
	case "memory":
	case "sqs":
		if c.SQS.QueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when QUEUE_BACKEND=sqs")
		}
	default:
		return fmt.Errorf("invalid QUEUE_BACKEND %q: must be memory or sqs", c.Queue.Backend)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.Worker.MaxRetries < 1 {
		return fmt.Errorf("WORKER_MAX_RETRIES must be at least 1")
	}
	if c.Worker.ProcessingLease <= c.Worker.ProcessorTimeout {
		return fmt.Errorf("WORKER_PROCESSING_LEASE must be longer than WORKER_PROCESSOR_TIMEOUT")
	}
	if c.Worker.SubscriptionRefresh <= 0 {
		return fmt.Errorf("WORKER_SUBSCRIPTION_REFRESH must be positive")
	}
	if c.Archive.Enabled && !c.ClickHouse.Enabled {
		return fmt.Errorf("ARCHIVE_ENABLED requires CLICKHOUSE_ENABLED")
	}
	if c.Queue.Backend == "memory" && !c.Service.EmbeddedWorkers {
		return fmt.Errorf("QUEUE_BACKEND=memory requires SERVICE_EMBEDDED_WORKERS")
	}

	return nil
}
