package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	HTTPAddr string `yaml:"HTTP_ADDR" env:"HTTP_ADDR" env-default:":8080"`
	GinMode  string `yaml:"GIN_MODE"  env:"GIN_MODE"  env-default:"release"`

	Log    Log    `yaml:"LOG"`
	Engine Engine `yaml:"ENGINE"`
	Stream Stream `yaml:"STREAM"`
	MySQL  MySQL  `yaml:"MYSQL"`
	Redis  Redis  `yaml:"REDIS"`
}

type Log struct {
	File       string `yaml:"LOG_FILE"        env:"LOG_FILE"`
	Verbose    bool   `yaml:"LOG_VERBOSE"     env:"LOG_VERBOSE"     env-default:"false"`
	MaxSizeMB  int    `yaml:"LOG_MAX_SIZE"    env:"LOG_MAX_SIZE"    env-default:"100"`
	MaxBackups int    `yaml:"LOG_MAX_BACKUPS" env:"LOG_MAX_BACKUPS" env-default:"7"`
	MaxAgeDays int    `yaml:"LOG_MAX_AGE"     env:"LOG_MAX_AGE"     env-default:"30"`
	Compress   bool   `yaml:"LOG_COMPRESS"    env:"LOG_COMPRESS"    env-default:"true"`
}

type Engine struct {
	CodeLength       int           `yaml:"CODE_LENGTH"        env:"CODE_LENGTH"        env-default:"8"`
	VerifyCodeLength int           `yaml:"VERIFY_CODE_LENGTH" env:"VERIFY_CODE_LENGTH" env-default:"3"`
	SweepInterval    time.Duration `yaml:"SWEEP_INTERVAL"     env:"SWEEP_INTERVAL"     env-default:"1m"`
}

type Stream struct {
	Buffer    int           `yaml:"STREAM_BUFFER"    env:"STREAM_BUFFER"    env-default:"64"`
	Heartbeat time.Duration `yaml:"STREAM_HEARTBEAT" env:"STREAM_HEARTBEAT" env-default:"15s"`
}

// MySQL enables snapshot persistence when Host is set.
type MySQL struct {
	Host     string `yaml:"MYSQL_HOST"     env:"MYSQL_HOST"`
	Port     string `yaml:"MYSQL_PORT"     env:"MYSQL_PORT"     env-default:"3306"`
	User     string `yaml:"MYSQL_USER"     env:"MYSQL_USER"     env-default:"root"`
	Password string `yaml:"MYSQL_PASSWORD" env:"MYSQL_PASSWORD"`
	DBName   string `yaml:"MYSQL_DB"       env:"MYSQL_DB"       env-default:"eventwall"`
	Queue    int    `yaml:"PERSIST_QUEUE"  env:"PERSIST_QUEUE"  env-default:"1024"`
}

// Redis enables the cross-process event relay when Addr is set.
type Redis struct {
	Addr          string `yaml:"REDIS_ADDR"           env:"REDIS_ADDR"`
	Password      string `yaml:"REDIS_PASSWORD"       env:"REDIS_PASSWORD"`
	DB            int    `yaml:"REDIS_DB"             env:"REDIS_DB"             env-default:"0"`
	ChannelPrefix string `yaml:"REDIS_CHANNEL_PREFIX" env:"REDIS_CHANNEL_PREFIX" env-default:"eventwall"`
	Queue         int    `yaml:"RELAY_QUEUE"          env:"RELAY_QUEUE"          env-default:"1024"`
}

// New loads .env when present, then reads the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "config: load .env")
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, errors.Wrap(err, "config: read env")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Engine.CodeLength < 4 || c.Engine.CodeLength > 32:
		return errors.Errorf("config: CODE_LENGTH must be between 4 and 32, got %d", c.Engine.CodeLength)
	case c.Engine.VerifyCodeLength < 3 || c.Engine.VerifyCodeLength > 9:
		return errors.Errorf("config: VERIFY_CODE_LENGTH must be between 3 and 9, got %d", c.Engine.VerifyCodeLength)
	case c.Engine.SweepInterval <= 0:
		return errors.New("config: SWEEP_INTERVAL must be positive")
	case c.Stream.Buffer < 1:
		return errors.New("config: STREAM_BUFFER must be positive")
	case c.Stream.Heartbeat <= 0:
		return errors.New("config: STREAM_HEARTBEAT must be positive")
	case c.MySQL.Host != "" && c.MySQL.Queue < 1:
		return errors.New("config: PERSIST_QUEUE must be positive")
	case c.Redis.Addr != "" && c.Redis.Queue < 1:
		return errors.New("config: RELAY_QUEUE must be positive")
	}
	return nil
}
