// Package config はサーバーの設定を読み込みます。
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定です。
// API キーはここに持たず、APIKeySource で初回利用時に読み出します。
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
	Gemini  GeminiConfig  `mapstructure:"gemini" validate:"required"`
	Retry   RetryConfig   `mapstructure:"retry" validate:"required"`
	Session SessionConfig `mapstructure:"session" validate:"required"`
	Upload  UploadConfig  `mapstructure:"upload" validate:"required"`

	v *viper.Viper
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

type GeminiConfig struct {
	StoryModel string `mapstructure:"story_model" validate:"required"`
	ImageModel string `mapstructure:"image_model" validate:"required"`
	// RequestsPerMinute が 0 のときはレート制御をしません。
	RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"gte=0"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gt=0,lte=10"`
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gt=0"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type UploadConfig struct {
	MaxBytes          int64 `mapstructure:"max_bytes" validate:"gt=0"`
	CompressOverBytes int   `mapstructure:"compress_over_bytes" validate:"gte=0"`
	JPEGQuality       int   `mapstructure:"jpeg_quality" validate:"gte=1,lte=100"`
}
