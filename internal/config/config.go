// Package config предоставялет структуры и функции для парсинга и загрузки конфига
// агента, сервера лицензий и сервиса уведомлений.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	TestingMode             bool   `yaml:"testing_mode" env:"COHOST_TESTING_MODE"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`

	Paths           Paths              `yaml:"paths"`
	LicenseServer   LicenseServer      `yaml:"license_server"`
	Credit          Credit             `yaml:"credit"`
	DailyLimit      DailyLimit         `yaml:"daily_limit"`
	Demo            Demo               `yaml:"demo"`
	UsageSync       UsageSync          `yaml:"usage_sync"`
	AgentHTTP       AgentHTTP          `yaml:"agent_http"`
	HTTPServer      HTTPServer         `yaml:"http_server"`
	RedisConnection RedisConnection    `yaml:"redis_connection"`
	RabbitMQ        RabbitMQ           `yaml:"rabbitmq"`
	SMTP            SMTP               `yaml:"smtp"`
	PaymentProvider PaymentProvider    `yaml:"payment_provider"`
	Packages        map[string]Package `yaml:"packages"`
}

// Paths расположение локальных файлов агента
type Paths struct {
	ConfigDir  string `yaml:"config_dir" env:"COHOST_CONFIG_DIR" env-default:"config"`
	TempDir    string `yaml:"temp_dir" env:"COHOST_TEMP_DIR" env-default:"temp"`
	OutboxFile string `yaml:"outbox_file" env-default:"temp/usage_outbox.db"`
}

// LicenseServer настройки удалённого сервера лицензий
type LicenseServer struct {
	URL          string        `yaml:"url" env:"LICENSE_SERVER_URL" env-default:"http://localhost:8000"`
	Timeout      time.Duration `yaml:"timeout" env-default:"10s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env-default:"0s"`
	OfflineGrace time.Duration `yaml:"offline_grace" env-default:"0s"`
	Revalidate   time.Duration `yaml:"revalidate_interval" env-default:"2m"`
	HardwareID   string        `yaml:"hardware_id" env:"COHOST_HARDWARE_ID"`
}

// Credit таблица стоимости и режим списания кредитов
type Credit struct {
	ProductionMode   bool               `yaml:"production_mode" env:"COHOST_PRODUCTION_MODE"`
	Multiplier       float64            `yaml:"multiplier" env-default:"3"`
	AIBase           float64            `yaml:"ai_base" env-default:"0.5"`
	AIPerToken       float64            `yaml:"ai_per_token" env-default:"0.005"`
	TranslatePerWord float64            `yaml:"translate_per_word" env-default:"0.002"`
	STTPerSecond     map[string]float64 `yaml:"stt_per_second"`
	TTSPerChar       map[string]float64 `yaml:"tts_per_char"`
}

// DailyLimit дневной лимит времени работы
type DailyLimit struct {
	MaxHours float64 `yaml:"max_hours" env-default:"10"`
	Timezone string  `yaml:"timezone" env-default:"Asia/Jakarta"`
}

// Demo настройки демо-режима
type Demo struct {
	Duration time.Duration `yaml:"duration" env-default:"30m"`
	Grace    time.Duration `yaml:"grace" env-default:"10s"`
}

// UsageSync настройки фоновой отправки использования на сервер
type UsageSync struct {
	Interval       time.Duration `yaml:"interval" env-default:"30s"`
	BatchSize      int           `yaml:"batch_size" env-default:"50"`
	MaxRetries     uint64        `yaml:"max_retries" env-default:"3"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env-default:"500ms"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env-default:"30s"`
	MaxAttempts    int           `yaml:"max_attempts" env-default:"20"`
}

// AgentHTTP локальный API агента для GUI
type AgentHTTP struct {
	Address string        `yaml:"address" env:"AGENT_HTTP_ADDRESS" env-default:"127.0.0.1:8765"`
	Timeout time.Duration `yaml:"timeout" env-default:"15s"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP  string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8000"`
	TimeoutHTTP  time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit    float64       `yaml:"rate_limit" env-default:"20"`
	RateBurst    int           `yaml:"rate_burst" env-default:"40"`
	LowCredit    float64       `yaml:"low_credit_threshold" env-default:"5"`
	AccountCache time.Duration `yaml:"account_cache_ttl" env-default:"1m"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ настройки брокера
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// SMTP настройки почтового сервера
type SMTP struct {
	Host string `yaml:"host" env:"SMTP_HOST"`
	Port string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User string `yaml:"user" env:"SMTP_USER"`
	Pass string `yaml:"pass" env:"SMTP_PASS"`
}

// PaymentProvider настройки платёжного провайдера
type PaymentProvider struct {
	APIURL        string `yaml:"api_url" env-default:"https://api.yookassa.ru/v3"`
	ShopID        string `yaml:"shop_id" env:"PAYMENT_SHOP_ID"`
	SecretKey     string `yaml:"secret_key" env:"PAYMENT_SECRET_KEY"`
	ReturnURL     string `yaml:"return_url" env-default:"https://cohost.app/payment/done"`
	WebhookSecret string `yaml:"webhook_secret" env:"PAYMENT_WEBHOOK_SECRET"`
}

// Package пакет кредитов, доступный для покупки
type Package struct {
	Credits  float64 `yaml:"credits"`
	Price    string  `yaml:"price"`
	Currency string  `yaml:"currency"`
}

// Load читает конфиг по указанному пути.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH.
// Переменные из .env в рабочем каталоге подхватываются, если файл есть.
func MustLoad() *Config {
	_ = godotenv.Load()
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Location возвращает часовой пояс для дневных сбросов. При отсутствии tzdata
// используется фиксированный UTC+7.
func (d DailyLimit) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"TestingMode: %t\n"+
			"Paths:\n"+
			"  ConfigDir: %s\n"+
			"  TempDir: %s\n"+
			"  OutboxFile: %s\n"+
			"LicenseServer:\n"+
			"  URL: %s\n"+
			"  Timeout: %s\n"+
			"Credit:\n"+
			"  ProductionMode: %t\n"+
			"  Multiplier: %.2f\n"+
			"DailyLimit:\n"+
			"  MaxHours: %.1f\n"+
			"  Timezone: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"AgentHTTP:\n"+
			"  Address: %s\n",
		c.Env,
		c.TestingMode,
		c.Paths.ConfigDir,
		c.Paths.TempDir,
		c.Paths.OutboxFile,
		c.LicenseServer.URL,
		c.LicenseServer.Timeout,
		c.Credit.ProductionMode,
		c.Credit.Multiplier,
		c.DailyLimit.MaxHours,
		c.DailyLimit.Timezone,
		c.HTTPServer.AddressHTTP,
		c.AgentHTTP.Address,
	)
}
