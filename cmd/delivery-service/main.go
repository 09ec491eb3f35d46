package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/app"
	"github.com/vladislavdragonenkov/delivery/internal/version"
)

const (
	envMetricsAddr         = "DELIVERY_METRICS_ADDR"
	envLogLevel            = "DELIVERY_LOG_LEVEL"
	envStorageDriver       = "DELIVERY_STORAGE_DRIVER"
	envPostgresDSN         = "DELIVERY_POSTGRES_DSN"
	envPostgresAutoMigrate = "DELIVERY_POSTGRES_AUTO_MIGRATE"
	envSignatureBucketURL  = "DELIVERY_SIGNATURE_BUCKET_URL"
	envSignatureBucket     = "DELIVERY_SIGNATURE_BUCKET"
	envMailFrom            = "DELIVERY_MAIL_FROM"
	envMailBcc             = "DELIVERY_MAIL_BCC"
	envMailReplyTo         = "DELIVERY_MAIL_REPLY_TO"
	envDefaultLocale       = "DELIVERY_DEFAULT_LOCALE"
	envOperationTimeout    = "DELIVERY_OPERATION_TIMEOUT"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envReceiptTopic        = "DELIVERY_RECEIPT_TOPIC"
	envOutboxPollInterval  = "DELIVERY_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "DELIVERY_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "DELIVERY_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "DELIVERY_OUTBOX_RETRY_DELAY"
)

// envLookup совпадает по сигнатуре с os.LookupEnv.
type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию, а в warnings
// попадает описание проблемы.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	list := func(key string, target *[]string) {
		if v, ok := lookup(key); ok {
			*target = splitList(v)
		}
	}

	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envLogLevel, &cfg.LogLevel)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envSignatureBucket, &cfg.SignatureBucket)
	str(envMailFrom, &cfg.MailFrom)
	str(envDefaultLocale, &cfg.DefaultLocale)
	str(envReceiptTopic, &cfg.ReceiptTopic)
	list(envMailBcc, &cfg.MailBcc)
	list(envMailReplyTo, &cfg.MailReplyTo)
	list(envKafkaBrokers, &cfg.KafkaBrokers)

	// Пустой URL bucket допустим: подписи хранятся в памяти.
	if v, ok := lookup(envSignatureBucketURL); ok {
		cfg.SignatureBucketURL = strings.TrimSpace(v)
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(d time.Duration) bool { return d > 0 }
	durations := []struct {
		key    string
		target *time.Duration
		valid  func(time.Duration) bool
		rule   string
	}{
		{envOperationTimeout, &cfg.OperationTimeout, positive, "must be > 0"},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok {
			if parsed, err := parseDuration(v, d.valid, d.rule); err != nil {
				warn(d.key, v, err)
			} else {
				*d.target = parsed
			}
		}
	}

	ints := []struct {
		key    string
		target *int
	}{
		{envOutboxBatchSize, &cfg.OutboxBatchSize},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
	}
	for _, i := range ints {
		if v, ok := lookup(i.key); ok {
			if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
				warn(i.key, v, err)
			} else {
				*i.target = parsed
			}
		}
	}

	return cfg, warnings
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func main() {
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  len(cfg.KafkaBrokers) > 0,
		"version":        version.GetVersion(),
	}).Info("запускаем delivery service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("delivery service остановлен")
}
