package internal

import (
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	BackendBadger   = "badger"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	Host                 string        `env:"HOST,default=0.0.0.0"`
	GrpcPort             int           `env:"GRPC_PORT,required=true"`
	HttpPort             int           `env:"HTTP_PORT,required=true"`
	StoreBackend         string        `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,default=./data/badger"`
	DynamoDBTable        string        `env:"DYNAMODB_TABLE,default=direct-messages"`
	DynamoDBEndpoint     string        `env:"DYNAMODB_ENDPOINT"`
	AwsRegion            string        `env:"AWS_REGION,default=eu-west-3"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	OverflowPolicy       string        `env:"OVERFLOW_POLICY,default=disconnect"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	AllowSelfMessages    bool          `env:"ALLOW_SELF_MESSAGES,default=true"`
	JwtSecret            string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	SendRatePerSecond    int           `env:"SEND_RATE_PER_SECOND,default=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	AppendMaxAttempts    int           `env:"APPEND_MAX_ATTEMPTS,default=5"`
	CensoredWordsFile    string        `env:"CENSORED_WORDS_FILE"`
	CharReplacement      string        `env:"CHAR_REPLACEMENT,default=*"`
}

// Validate checks the values env tags cannot express.
func (c Config) Validate() error {
	if c.StoreBackend != BackendBadger && c.StoreBackend != BackendDynamoDB {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendBadger, BackendDynamoDB, c.StoreBackend)
	}
	if c.ConnectionBufferSize < 1 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if c.SendRatePerSecond < 0 {
		return fmt.Errorf("SEND_RATE_PER_SECOND must not be negative, got %d", c.SendRatePerSecond)
	}
	if c.MetricInterval <= 0 {
		return fmt.Errorf("METRIC_INTERVAL must be positive, got %s", c.MetricInterval)
	}
	if utf8.RuneCountInString(c.CharReplacement) != 1 {
		return fmt.Errorf("CHAR_REPLACEMENT must be a single character, got %q", c.CharReplacement)
	}
	if len(c.JwtSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	return nil
}
