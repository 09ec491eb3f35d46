package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/app"
	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/orders"
)

type loadMode string

const (
	modeCreate        loadMode = "create"
	modeCreateUpdate  loadMode = "create-update"
	modeCreateReceipt loadMode = "create-receipt"
)

const codeOK = "ok"

type config struct {
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	customers   int
	timeout     time.Duration
	mode        loadMode
	storage     string
	dsn         string
	customerTag string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	AllocatedIDs      int                     `json:"allocated_ids"`
	DuplicateIDs      []string                `json:"duplicate_ids,omitempty"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

// collector собирает латентность и коды ошибок по операциям workflow,
// а также все выданные номера заказов для проверки уникальности.
type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
	ids     map[string]int
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
		ids:     make(map[string]int),
	}
}

func (c *collector) record(method string, latency time.Duration, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if code == codeOK {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) recordID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[id]++
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		AllocatedIDs:    len(c.ids),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}
	for id, count := range c.ids {
		if count > 1 {
			result.DuplicateIDs = append(result.DuplicateIDs, id)
		}
	}
	sort.Strings(result.DuplicateIDs)

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var cfg config
	var modeValue string

	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.customers, "customers", 10, "number of customers orders are spread across")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-operation timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-update | create-receipt")
	fs.StringVar(&cfg.storage, "storage", app.StorageDriverMemory, "storage driver: memory|postgres")
	fs.StringVar(&cfg.dsn, "dsn", os.Getenv("DELIVERY_POSTGRES_DSN"), "PostgreSQL DSN for postgres storage")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.customers <= 0 {
		return cfg, errors.New("customers must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreateUpdate:
		return modeCreateUpdate, nil
	case modeCreateReceipt:
		return modeCreateReceipt, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	log.SetLevel(log.WarnLevel)

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	appCfg := app.DefaultConfig()
	appCfg.StorageDriver = cfg.storage
	appCfg.PostgresDSN = cfg.dsn
	appCfg.SignatureBucketURL = ""

	deps, err := app.NewDependencies(context.Background(), appCfg, log.WithField("component", "loadtest"))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init dependencies: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = deps.Close() }()

	result, err := run(context.Background(), cfg, deps.Repo, deps.Workflow)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || len(result.DuplicateIDs) > 0 {
		os.Exit(1)
	}
}

// workflow — операции, которые нагружает loadtest.
type workflow interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (string, error)
	UpdateOrder(ctx context.Context, customerID, orderID string, patch orders.OrderPatch) error
	SendReceipt(ctx context.Context, req orders.SendReceiptRequest) (orders.ReceiptResult, error)
}

func run(ctx context.Context, cfg config, repo domain.OrderRepository, wf workflow) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d", startedAt.UnixNano())

	customerIDs, err := seedCustomers(ctx, repo, cfg, runID)
	if err != nil {
		return report{}, err
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup

	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				runScenario(ctx, wf, cfg, customerIDs[idx%len(customerIDs)], col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt)), nil
}

func seedCustomers(ctx context.Context, repo domain.OrderRepository, cfg config, runID string) ([]string, error) {
	ids := make([]string, 0, cfg.customers)
	for i := range cfg.customers {
		customer := domain.Customer{
			ID:        fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, i),
			Name:      fmt.Sprintf("Load customer %d", i),
			Email:     fmt.Sprintf("load+%d@example.com", i),
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.SaveCustomer(ctx, customer); err != nil {
			return nil, fmt.Errorf("seed customer %s: %w", customer.ID, err)
		}
		ids = append(ids, customer.ID)
	}
	return ids, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, wf workflow, cfg config, customerID string, col *collector) {
	scenarioStart := time.Now()
	scenarioCode := codeOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioCode)
	}()

	var orderID string
	err := timed(ctx, cfg.timeout, "CreateOrder", col, func(ctx context.Context) error {
		id, err := wf.CreateOrder(ctx, orders.CreateOrderRequest{
			CustomerID: customerID,
			IsOpen:     true,
			LineItems:  []domain.LineItemInput{{Title: "Load crate", Quantity: "2", UnitPrice: "4.25"}},
		})
		orderID = id
		return err
	})
	if err != nil {
		scenarioCode = code(err)
		return
	}
	col.recordID(orderID)

	switch cfg.mode {
	case modeCreateUpdate:
		closed := false
		err = timed(ctx, cfg.timeout, "UpdateOrder", col, func(ctx context.Context) error {
			return wf.UpdateOrder(ctx, customerID, orderID, orders.OrderPatch{IsOpen: &closed})
		})
	case modeCreateReceipt:
		err = timed(ctx, cfg.timeout, "SendReceipt", col, func(ctx context.Context) error {
			_, err := wf.SendReceipt(ctx, orders.SendReceiptRequest{CustomerID: customerID, OrderID: orderID})
			return err
		})
	}
	if err != nil {
		scenarioCode = code(err)
	}
}

func timed(ctx context.Context, timeout time.Duration, method string, col *collector, fn func(context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	col.record(method, time.Since(start), code(err))
	return err
}

// code сводит ошибку workflow к её виду для отчёта.
func code(err error) string {
	if err == nil {
		return codeOK
	}
	return string(domain.KindOf(err))
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s storage=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		cfg.storage,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f allocated_ids=%d duplicate_ids=%d\n",
		result.DurationSeconds, result.RPS, result.AllocatedIDs, len(result.DuplicateIDs))
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(w,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
