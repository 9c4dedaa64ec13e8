package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shouni/gemini-picture-book/pkg/provider"
	"github.com/spf13/viper"
)

const (
	envPrefix = "PICTURE_BOOK"
	// fallbackAPIKeyEnv は PICTURE_BOOK_GEMINI_API_KEY が無いときに参照する環境変数です。
	fallbackAPIKeyEnv = "GEMINI_API_KEY"
)

// Load は既定値、設定ファイル、環境変数の順に設定を重ねて読み込み、検証します。
// path が空なら設定ファイルは読みません。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", describe(err))
	}
	cfg.v = v
	return &cfg, nil
}

// APIKeySource は API キーを読み出す関数を返します。
// 読み出しは呼ばれたときに行うので、起動時にキーが無くてもエラーにはなりません。
func (c *Config) APIKeySource() provider.KeySource {
	return func() string {
		if c.v != nil {
			if key := strings.TrimSpace(c.v.GetString("gemini.api_key")); key != "" {
				return key
			}
		}
		return strings.TrimSpace(os.Getenv(fallbackAPIKeyEnv))
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	// 1 冊の生成は数分かかることがある
	v.SetDefault("server.write_timeout", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.story_model", "gemini-2.5-flash")
	v.SetDefault("gemini.image_model", "gemini-2.5-flash-image")
	v.SetDefault("gemini.requests_per_minute", 0)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "2s")

	v.SetDefault("session.ttl", "2h")

	v.SetDefault("upload.max_bytes", 32<<20)
	v.SetDefault("upload.compress_over_bytes", 1<<20)
	v.SetDefault("upload.jpeg_quality", 85)
}

// describe は検証エラーをフィールド名付きの 1 行にまとめます。
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
