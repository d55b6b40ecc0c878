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
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
)

const idempotencyHeader = "idempotency-key"

// Исходы одного сценария оформления.
const (
	outcomePlaced  = "placed"
	outcomeSoldOut = "sold_out"
)

type config struct {
	addr        string
	embedded    bool
	total       int
	concurrency int
	connections int
	timeout     time.Duration
	productID   string
	size        string
	phone       string
	// stock — исходный остаток размера; -1, если неизвестен (удалённый режим без проверки).
	stock      int
	outputPath string
}

func (c config) target() string {
	if c.embedded {
		return "embedded"
	}
	return c.addr
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var cfg config
	var timeoutValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.BoolVar(&cfg.embedded, "embedded", false, "run against an in-process server with in-memory storage")
	fs.IntVar(&cfg.total, "total", 400, "total checkout scenarios to execute")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	fs.StringVar(&cfg.productID, "product", "load-product", "product id to buy")
	fs.StringVar(&cfg.size, "size", "M", "product size to buy")
	fs.StringVar(&cfg.phone, "phone", "+97600000000", "phone of a registered customer")
	fs.IntVar(&cfg.stock, "stock", 100, "initial stock of the size; -1 disables the oversell check for remote targets")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	if cfg.total <= 0 {
		return cfg, errors.New("total must be > 0")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if strings.TrimSpace(cfg.productID) == "" {
		return cfg, errors.New("product is required")
	}
	if strings.TrimSpace(cfg.size) == "" {
		return cfg, errors.New("size is required")
	}
	if strings.TrimSpace(cfg.phone) == "" {
		return cfg, errors.New("phone is required")
	}
	if cfg.stock < -1 {
		return cfg, errors.New("stock must be >= -1")
	}
	if cfg.embedded && cfg.stock < 0 {
		return cfg, errors.New("embedded mode requires stock >= 0")
	}

	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "loadtest")

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("load test failed to start")
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			logger.WithError(err).Fatal("failed to write report")
		}
	}

	if err := verify(result, cfg); err != nil {
		logger.WithError(err).Error("stock invariant violated")
		os.Exit(1)
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run выполняет cfg.total оформлений одной единицы товара конкурентно и собирает отчёт.
func run(ctx context.Context, cfg config, logger *log.Entry) (report, error) {
	var embedded *embeddedServer
	if cfg.embedded {
		srv, err := startEmbeddedServer(ctx, cfg, logger)
		if err != nil {
			return report{}, err
		}
		defer srv.stop()
		embedded = srv
		cfg.addr = srv.addr
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]storefrontv1.OrderServiceClient, 0, cfg.connections)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	for i := 0; i < cfg.connections; i++ {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return report{}, fmt.Errorf("create grpc client connection: %w", err)
		}
		conns = append(conns, conn)
		clients = append(clients, storefrontv1.NewOrderServiceClient(conn))
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	var placed, soldOut atomic.Int64
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli storefrontv1.OrderServiceClient) {
			defer wg.Done()
			for id := range jobs {
				switch runScenario(ctx, cli, cfg, id, runID, col) {
				case outcomePlaced:
					placed.Add(1)
				case outcomeSoldOut:
					soldOut.Add(1)
				}
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(ctx, jobs, cfg.total)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	result.Stock = stockReport{
		ProductID: cfg.productID,
		Size:      cfg.size,
		Initial:   cfg.stock,
		Placed:    placed.Load(),
		SoldOut:   soldOut.Load(),
	}
	if embedded != nil {
		remaining, err := embedded.remaining(context.Background(), cfg.productID, cfg.size)
		if err != nil {
			return result, fmt.Errorf("read remaining stock: %w", err)
		}
		result.Stock.Remaining = &remaining
	}
	result.Stock.Oversold = oversold(result.Stock)
	return result, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, total int) {
	defer close(jobs)
	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return
		case jobs <- i:
		}
	}
}

// runScenario оформляет одну единицу товара и возвращает исход; пустая строка — ошибка.
func runScenario(
	ctx context.Context,
	client storefrontv1.OrderServiceClient,
	cfg config,
	index int,
	runID string,
	col *collector,
) string {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	outcome := ""
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioCode, outcome)
	}()

	req := &storefrontv1.PlaceOrdersRequest{
		Phone: cfg.phone,
		Address: &storefrontv1.Address{
			Address:  fmt.Sprintf("Load street %d", index),
			City:     "Ulaanbaatar",
			District: "SBD",
		},
		Items: []storefrontv1.LineItem{{ProductID: cfg.productID, Size: cfg.size, Quantity: 1}},
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	callCtx = metadata.AppendToOutgoingContext(callCtx, idempotencyHeader, fmt.Sprintf("lt-place-%s-%d", runID, index))

	resp, err := client.PlaceOrders(callCtx, req)
	if err != nil {
		scenarioCode = status.Code(err)
		col.record("PlaceOrders", time.Since(start), scenarioCode, "")
		return ""
	}

	switch {
	case resp.Failure == nil && resp.Placed == 1:
		outcome = outcomePlaced
	case resp.Failure != nil && resp.Failure.Reason == storefrontv1.FailureInsufficientStock:
		outcome = outcomeSoldOut
	default:
		scenarioCode = codes.FailedPrecondition
		if resp.Failure != nil {
			outcome = resp.Failure.Reason
		}
		col.record("PlaceOrders", time.Since(start), scenarioCode, outcome)
		return ""
	}
	col.record("PlaceOrders", time.Since(start), codes.OK, outcome)
	return outcome
}

func oversold(s stockReport) bool {
	if s.Initial < 0 {
		return false
	}
	if s.Placed > int64(s.Initial) {
		return true
	}
	if s.Remaining != nil {
		return *s.Remaining < 0 || int64(*s.Remaining)+s.Placed != int64(s.Initial)
	}
	return false
}

// verify проверяет, что продано не больше остатка и без ошибок продано ровно min(total, stock).
func verify(result report, cfg config) error {
	s := result.Stock
	if s.Oversold {
		return fmt.Errorf("oversold: initial=%d placed=%d", s.Initial, s.Placed)
	}
	if s.Initial < 0 || result.FailedScenarios > 0 {
		return nil
	}
	want := int64(min(cfg.total, s.Initial))
	if result.TotalScenarios == int64(cfg.total) && s.Placed != want {
		return fmt.Errorf("expected %d placed orders, got %d", want, s.Placed)
	}
	return nil
}
