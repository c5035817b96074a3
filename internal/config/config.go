package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/yproz/tg-bots/internal/app_errors"
)

// Значения по умолчанию
const (
	WorkerCount          = 5
	BatchSize            = 1000
	BatchDelay           = 1 * time.Second
	ParserTimeout        = 30 * time.Second
	MarketTimeout        = 30 * time.Second
	StoreTimeout         = 30 * time.Second
	DefaultParserBaseURL = "https://parser.market/wp-json/client-api/v1"

	// 06:00 и 14:00 UTC = 09:00 и 17:00 МСК
	CollectSchedule = "0 0 6,14 * * *"
	CheckSchedule   = "@every 3m"
)

// Config represents the service configuration.
type Config struct {
	TelegramToken  string  `validate:"required"`
	AllowedUserIDs []int64 `validate:"dive,gt=0"`

	PGConnString string `validate:"required"`

	RedisAddress  string
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	ParserBaseURL string        `validate:"required,url"`
	ParserTimeout time.Duration `validate:"gt=0"`
	MarketTimeout time.Duration `validate:"gt=0"`
	StoreTimeout  time.Duration `validate:"gt=0"`

	TestMode    bool
	BatchSize   int
	BatchDelay  time.Duration `validate:"gte=0"`
	WorkerCount int           `validate:"gt=0"`

	CollectSchedule string `validate:"required"`
	CheckSchedule   string `validate:"required"`
	SummaryLocation *time.Location

	LogLevel      string
	LogDir        string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogJSON       bool
}

// LoadConfig loads the configuration from environment variables.
// Переменные из файла .env подхватываются, если файл существует.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	return Config{
		TelegramToken:   getEnvString("TELEGRAM_TOKEN", ""),
		AllowedUserIDs:  getEnvIntSlice("TELEGRAM_ALLOWED_USER_IDS", []int64{}),
		PGConnString:    getEnvString("PG_CONN_STRING", ""),
		RedisAddress:    getEnvString("REDIS_ADDRESS", ""),
		RedisPassword:   getEnvString("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		ParserBaseURL:   strings.TrimRight(getEnvString("PARSER_BASE_URL", DefaultParserBaseURL), "/"),
		ParserTimeout:   time.Duration(getEnvInt("PARSER_TIMEOUT_SEC", int(ParserTimeout.Seconds()))) * time.Second,
		MarketTimeout:   time.Duration(getEnvInt("MARKET_TIMEOUT_SEC", int(MarketTimeout.Seconds()))) * time.Second,
		StoreTimeout:    time.Duration(getEnvInt("STORE_TIMEOUT_SEC", int(StoreTimeout.Seconds()))) * time.Second,
		TestMode:        getEnvBool("TEST_MODE", false),
		BatchSize:       getEnvInt("BATCH_SIZE", BatchSize),
		BatchDelay:      time.Duration(getEnvInt("BATCH_DELAY_MS", int(BatchDelay.Milliseconds()))) * time.Millisecond,
		WorkerCount:     getEnvInt("WORKER_COUNT", WorkerCount),
		CollectSchedule: getEnvString("COLLECT_SCHEDULE", CollectSchedule),
		CheckSchedule:   getEnvString("CHECK_SCHEDULE", CheckSchedule),
		SummaryLocation: getEnvLocation("SUMMARY_TIMEZONE", time.UTC),
		LogLevel:        getEnvString("LOG_LEVEL", "info"),
		LogDir:          getEnvString("LOG_DIR", ""),
		LogMaxSizeMB:    getEnvInt("LOG_MAX_SIZE_MB", 0),
		LogMaxBackups:   getEnvInt("LOG_MAX_BACKUPS", 0),
		LogJSON:         getEnvBool("LOG_JSON", false),
	}
}

// Validate проверяет обязательные параметры. Ошибка здесь фатальна для процесса.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return app_errors.New(app_errors.KindFatal, "validate config",
				fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", ")))
		}
		return app_errors.New(app_errors.KindFatal, "validate config", fmt.Errorf("invalid configuration: %w", err))
	}
	return nil
}

// Вспомогательные функции для получения переменных окружения
func getEnvString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Warning: invalid value for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}

	return intValue
}

func getEnvIntSlice(key string, defaultValue []int64) []int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	strSlice := strings.Split(valueStr, ",")
	intSlice := make([]int64, 0, len(strSlice))
	for _, strVal := range strSlice {
		trimmedVal := strings.Trim(strings.TrimSpace(strVal), "\"")
		if trimmedVal == "" {
			continue
		}
		if intVal, err := strconv.ParseInt(trimmedVal, 10, 64); err == nil {
			intSlice = append(intSlice, intVal)
		} else {
			log.Printf("Warning: Could not parse integer value '%s' for key '%s': %v", trimmedVal, key, err)
		}
	}
	return intSlice
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}

	return boolValue
}

func getEnvLocation(key string, defaultValue *time.Location) *time.Location {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	loc, err := time.LoadLocation(value)
	if err != nil {
		log.Printf("Warning: invalid time zone for %s: %s, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return loc
}
