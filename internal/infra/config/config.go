package config

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию бота.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Asia/Tashkent"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	Ledger struct {
		Backend       string `envconfig:"LEDGER_BACKEND" default:"sheets"`
		SpreadsheetID string `envconfig:"SPREADSHEET_ID"`
		CredsFile     string `envconfig:"GOOGLE_CREDENTIALS_FILE"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	Queue struct {
		Backend string `envconfig:"QUEUE_BACKEND" default:"memory"`
		Key     string `envconfig:"DISPATCH_QUEUE_KEY" default:"lead_dispatch"`
		Redis   string `envconfig:"REDIS_ADDR"`
		AMQPURL string `envconfig:"AMQP_URL"`
	} `envconfig:""`

	Routing struct {
		RecipientsFile string `envconfig:"RECIPIENTS_FILE" default:"recipients.json"`
		DefaultBucket  string `envconfig:"DEFAULT_BUCKET" default:"All"`
		PlatformMarker string `envconfig:"PLATFORM_MARKER" default:"amocrm.ru/leads/detail/"`
	} `envconfig:""`

	Delivery struct {
		MaxAttempts int           `envconfig:"DELIVERY_MAX_ATTEMPTS" default:"3"`
		BackoffBase time.Duration `envconfig:"DELIVERY_BACKOFF_BASE" default:"1s"`
		BackoffCap  time.Duration `envconfig:"DELIVERY_BACKOFF_CAP" default:"30s"`
		OverflowDir string        `envconfig:"OVERFLOW_DIR" default:"overflow"`
	} `envconfig:""`

	Ack struct {
		FirstDelay  time.Duration `envconfig:"ACK_FIRST_DELAY" default:"120s"`
		RepeatDelay time.Duration `envconfig:"ACK_REPEAT_DELAY" default:"180s"`
	} `envconfig:""`
}

// Load загружает .env (если есть) и конфиг из окружения.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// LoadRecipients читает статичную карту «получатель → вкладка» из JSON-файла.
func LoadRecipients(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tabs := make(map[string]string)
	if err := json.Unmarshal(data, &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}
