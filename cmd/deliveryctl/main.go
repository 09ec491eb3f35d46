package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/app"
	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

const usage = `usage: deliveryctl [-storage memory|postgres] [-dsn DSN] <command> [flags]

commands:
  customers add -id ID -name NAME -email EMAIL
  customers list
  orders list [-all]
  orders list-customer -customer ID [-all]
  orders create -customer ID -item "title:qty:price" [-item ...] [-open] [-signature FILE] [-signee NAME]
  orders update -customer ID -order ID [-open true|false] [-total N] [-item ...] [-signee NAME]
  orders remove -customer ID -order ID
  receipts send -customer ID [-order ID] [-locale TAG]
`

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deliveryctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usage) }

	cfg := app.DefaultConfig()
	storage := fs.String("storage", envOr(lookup, "DELIVERY_STORAGE_DRIVER", cfg.StorageDriver), "storage driver: memory|postgres")
	dsn := fs.String("dsn", envOr(lookup, "DELIVERY_POSTGRES_DSN", ""), "PostgreSQL DSN")
	bucketURL := fs.String("bucket-url", envOr(lookup, "DELIVERY_SIGNATURE_BUCKET_URL", cfg.SignatureBucketURL), "signature bucket endpoint")
	timeout := fs.Duration("timeout", 30*time.Second, "command timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return 2
	}

	cfg.StorageDriver = *storage
	cfg.PostgresDSN = *dsn
	cfg.SignatureBucketURL = *bucketURL
	cfg.MailFrom = envOr(lookup, "DELIVERY_MAIL_FROM", cfg.MailFrom)
	if brokers := envOr(lookup, "KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	deps, err := app.NewDependencies(ctx, cfg, log.WithField("component", "deliveryctl"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer func() { _ = deps.Close() }()

	c := &cli{deps: deps, out: stdout}
	if err := c.dispatch(ctx, fs.Args()); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
			_, _ = fmt.Fprint(stderr, usage)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "error (%s): %v\n", domain.KindOf(err), err)
		return 1
	}
	return 0
}

func envOr(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}
