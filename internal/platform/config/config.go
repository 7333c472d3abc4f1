package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"

	"SMTS-backend/internal/platform/db"
)

const (
	ModeDev     = "dev"
	ModeRelease = "release"
)

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type MailConfig struct {
	Host     string `yaml:"host" env:"EMAIL_HOST"`
	Port     int    `yaml:"port" env:"EMAIL_PORT"`
	User     string `yaml:"user" env:"EMAIL_USER"`
	Password string `yaml:"password" env:"EMAIL_PASS"`
	From     string `yaml:"from" env:"EMAIL_FROM"`
}

// Enabled: ホスト未設定ならメール送信しない（ログのみ）
func (m MailConfig) Enabled() bool { return strings.TrimSpace(m.Host) != "" }

type TelegramConfig struct {
	Token       string `yaml:"token" env:"TELEGRAM_TOKEN"`
	AdminChatID int64  `yaml:"admin_chat_id" env:"TELEGRAM_ADMIN_CHAT_ID"`
}

func (t TelegramConfig) Enabled() bool { return t.Token != "" && t.AdminChatID != 0 }

// Schedule は標準 5 フィールドの cron 式（UTC）
type ReminderConfig struct {
	Schedule string        `yaml:"schedule" env:"REMINDER_SCHEDULE"`
	Horizon  time.Duration `yaml:"horizon"`
}

func (r ReminderConfig) ParseSchedule() (cron.Schedule, error) {
	sched, err := cron.ParseStandard(r.Schedule)
	if err != nil {
		return nil, fmt.Errorf("reminder.schedule %q: %w", r.Schedule, err)
	}
	return sched, nil
}

type NotifyConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

type Config struct {
	Version  string            `yaml:"version"`
	Mode     string            `yaml:"mode" env:"APP_MODE"`
	HTTP     HTTPConfig        `yaml:"http"`
	DB       db.DatabaseConfig `yaml:"database"`
	Auth     AuthConfig        `yaml:"auth"`
	Mail     MailConfig        `yaml:"mail"`
	Telegram TelegramConfig    `yaml:"telegram"`
	Reminder ReminderConfig    `yaml:"reminder"`
	Notify   NotifyConfig      `yaml:"notify"`
}

func defaults() *Config {
	return &Config{
		Mode: ModeDev,
		HTTP: HTTPConfig{Addr: ":8443"},
		DB:   db.DatabaseConfig{Driver: db.DriverMySQL, Port: 3306},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Mail: MailConfig{Port: 587},
		Reminder: ReminderConfig{
			Schedule: "0 */2 * * *",
			Horizon:  2 * time.Hour,
		},
		Notify: NotifyConfig{QueueSize: 256, Workers: 1},
	}
}

// Load は YAML → .env → 環境変数 の順で上書きする
func Load(path, envFile string) (*Config, error) {
	cfg := defaults()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := gotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDev, ModeRelease, c.Mode)
	}
	if c.Mode == ModeRelease && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (JWT_SECRET) is required in release mode")
	}
	if _, err := c.Reminder.ParseSchedule(); err != nil {
		return err
	}
	if c.Reminder.Horizon < 0 {
		return errors.New("reminder.horizon must be >= 0")
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = 256
	}
	if c.Notify.Workers <= 0 {
		c.Notify.Workers = 1
	}
	return nil
}
