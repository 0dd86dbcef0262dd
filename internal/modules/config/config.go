package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"signal_bot/pkg/logger"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_BOT_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token           string  `yaml:"token"`
		AdminID         int64   `yaml:"admin_id"`
		ChannelIDs      []int64 `yaml:"channel_ids"`
		ChannelsEnabled bool    `yaml:"channels_enabled"`
	} `yaml:"telegram"`

	DB          string `yaml:"db_dsn"`
	JournalPath string `yaml:"journal_path" validate:"required_without=DB"`

	Platform struct {
		WSURL       string `yaml:"ws_url" validate:"omitempty,url"`
		SSID        string `yaml:"ssid"`
		SessionFile string `yaml:"session_file" validate:"required"`
	} `yaml:"platform"`

	Service struct {
		HealthAddr       string        `yaml:"health_addr" validate:"required"`
		HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" validate:"gt=0"`
		PendingFile      string        `yaml:"pending_file"`
		// файл-флаг паузы: /pause оператора переживает рестарт
		PauseFile string `yaml:"pause_file"`
	} `yaml:"service"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port" validate:"omitempty,gt=0,lt=65536"`
	} `yaml:"jaeger"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// IANA-зона; кривое имя не валит старт, см. NewZone
	Timezone string `yaml:"timezone"`
	Paused   bool   `yaml:"paused"`

	// Мартингейл
	BaseStake      float64       `yaml:"base_stake" validate:"gt=0"`
	Multiplier     float64       `yaml:"martingale_multiplier" validate:"gte=1"`
	MaxGales       int           `yaml:"max_gales" validate:"gte=0,lte=10"`
	MartingaleMode string        `yaml:"martingale_mode" validate:"oneof=classic smart"`
	OutcomeGrace   time.Duration `yaml:"outcome_grace" validate:"gt=0"`

	// Планировщик и входящая очередь
	LateTolerance time.Duration `yaml:"late_tolerance" validate:"gte=0"`
	InboxSize     int           `yaml:"inbox_size" validate:"gt=0"`
	InboxPolicy   string        `yaml:"inbox_policy" validate:"oneof=drop_oldest block"`
}

func defaults() Config {
	var c Config
	c.JournalPath = "data/trades.jsonl"
	c.Platform.SessionFile = "data/session.json"
	c.Service.HealthAddr = ":8080"
	c.Service.HeartbeatTimeout = 90 * time.Second
	c.Service.PendingFile = "data/pending.json"
	c.Service.PauseFile = "data/paused"
	c.Jaeger.Port = 6831
	c.LogLevel = "info"
	c.Timezone = "UTC"
	c.BaseStake = 10
	c.Multiplier = 2
	c.MaxGales = 2
	c.MartingaleMode = "classic"
	c.OutcomeGrace = 30 * time.Second
	c.LateTolerance = 2 * time.Minute
	c.InboxSize = 64
	c.InboxPolicy = "drop_oldest"
	c.Telegram.ChannelsEnabled = true
	return c
}

// NewConfig: дефолты -> .env -> configs/$CONFIG_FILE (если есть) -> переменные окружения -> валидация.
func NewConfig() (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	config := defaults()

	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	path := filepath.Join(getenvDefault(configDirENV, "configs"), configFileName)
	if err := decodeFile(path, &config); err != nil {
		return nil, err
	}

	applyEnv(&config)

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func decodeFile(path string, config *Config) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		logger.Info("[CONFIG] %s not found, using env only", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Telegram.Token = getenvDefault(tokenTelegramENV, c.Telegram.Token)
	c.Telegram.AdminID = int64FromEnv("TELEGRAM_ADMIN_ID", c.Telegram.AdminID)
	c.Telegram.ChannelIDs = int64sFromEnv("SIGNAL_CHANNEL_IDS", c.Telegram.ChannelIDs)
	c.Telegram.ChannelsEnabled = boolFromEnv("CHANNELS_ENABLED", c.Telegram.ChannelsEnabled)

	c.DB = getenvDefault(databaseDSN, c.DB)
	c.JournalPath = getenvDefault("JOURNAL_PATH", c.JournalPath)

	c.Platform.WSURL = getenvDefault("PLATFORM_WS_URL", c.Platform.WSURL)
	c.Platform.SSID = getenvDefault("PLATFORM_SSID", c.Platform.SSID)
	c.Platform.SessionFile = getenvDefault("SESSION_FILE", c.Platform.SessionFile)

	c.Service.HealthAddr = getenvDefault("HEALTH_ADDR", c.Service.HealthAddr)
	c.Service.HeartbeatTimeout = durationFromEnv("HEARTBEAT_TIMEOUT", c.Service.HeartbeatTimeout)
	c.Service.PendingFile = getenvDefault("PENDING_FILE", c.Service.PendingFile)
	c.Service.PauseFile = getenvDefault("PAUSE_FILE", c.Service.PauseFile)

	c.Jaeger.Host = getenvDefault("JAEGER_HOST", c.Jaeger.Host)
	c.Jaeger.Port = intFromEnv("JAEGER_PORT", c.Jaeger.Port)

	c.LogLevel = getenvDefault("LOG_LEVEL", c.LogLevel)
	c.Timezone = getenvDefault("TIMEZONE", c.Timezone)
	c.Paused = boolFromEnv("PAUSED", c.Paused)

	c.BaseStake = floatFromEnv("BASE_STAKE", c.BaseStake)
	c.Multiplier = floatFromEnv("MARTINGALE_MULTIPLIER", c.Multiplier)
	c.MaxGales = intFromEnv("MAX_GALES", c.MaxGales)
	c.MartingaleMode = getenvDefault("MARTINGALE_MODE", c.MartingaleMode)
	c.OutcomeGrace = durationFromEnv("OUTCOME_GRACE", c.OutcomeGrace)

	c.LateTolerance = durationFromEnv("LATE_TOLERANCE", c.LateTolerance)
	c.InboxSize = intFromEnv("INBOX_SIZE", c.InboxSize)
	c.InboxPolicy = getenvDefault("INBOX_POLICY", c.InboxPolicy)
}

func (c *Config) StakeDecimal() decimal.Decimal      { return decimal.NewFromFloat(c.BaseStake) }
func (c *Config) MultiplierDecimal() decimal.Decimal { return decimal.NewFromFloat(c.Multiplier) }

// IsSignalChannel: слушаем ли этот чат как канал сигналов.
func (c *Config) IsSignalChannel(chatID int64) bool {
	for _, id := range c.Telegram.ChannelIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
