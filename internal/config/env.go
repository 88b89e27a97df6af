package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".prism/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket   string `envconfig:"S3_BUCKET"`
	S3Prefix   string `envconfig:"S3_PREFIX" default:"prism/"`
	S3Region   string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	S3Endpoint string `envconfig:"S3_ENDPOINT"`
}

const (
	TaskStoreYAML     = "yaml"
	TaskStorePostgres = "postgres"
)

// DatabaseEnv selects where tasks, audit entries and the catalog live.
// With TaskStore yaml everything is kept in the document storage.
type DatabaseEnv struct {
	TaskStore   string `envconfig:"TASK_STORE" default:"yaml"`
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

func (e *VAPIDEnv) Configured() bool {
	return e.VAPIDPublicKey != "" && e.VAPIDPrivateKey != ""
}

type NotifierEnv struct {
	SubscriberBuffer int `envconfig:"SUBSCRIBER_BUFFER" default:"64"`
	DispatchBuffer   int `envconfig:"DISPATCH_BUFFER" default:"64"`
}

type Env struct {
	BaseEnv
	StorageEnv
	DatabaseEnv
	VAPIDEnv
	NotifierEnv
}

const namespace = "PRISM"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) validate() error {
	if e.APIKey == "" {
		return fmt.Errorf("%s_API_KEY must not be empty", namespace)
	}
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("%s_S3_BUCKET is required for s3 storage", namespace)
		}
	default:
		return fmt.Errorf("unknown storage type %q", e.StorageEnv.Type)
	}
	switch e.TaskStore {
	case TaskStoreYAML:
	case TaskStorePostgres:
		if e.DatabaseDSN == "" {
			return fmt.Errorf("%s_DATABASE_DSN is required for the postgres task store", namespace)
		}
	default:
		return fmt.Errorf("unknown task store %q", e.TaskStore)
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
