// Command rbf inspects and edits RBF files.
//
//	rbf [-config rbf.yaml] <command> [flags] <file>
//
// Commands: scan, verify, stats, append, truncate.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/term"

	"github.com/INLOpen/rbf/config"
	"github.com/INLOpen/rbf/hooks"
	"github.com/INLOpen/rbf/hooks/listeners"
	"github.com/INLOpen/rbf/sys"
)

// createLogger builds the JSON logger for the tool. Logs never go to
// stdout, which carries command output.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("logging.level %q: %w", cfg.Level, err)
	}

	out, closer, err := logOutput(cfg)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closer, nil
}

func logOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout", "stderr":
		return os.Stderr, nil, nil
	case "none":
		return io.Discard, nil, nil
	case "file":
		if cfg.File == "" {
			return nil, nil, errors.New("logging.output is file but logging.file is empty")
		}
		lf, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return lf, lf, nil
	}
	return nil, nil, fmt.Errorf("logging.output %q is not one of stdout, stderr, file, none", cfg.Output)
}

func newSpanExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Protocol) {
	case "grpc":
		return otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	case "http":
		return otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	}
	return nil, fmt.Errorf("tracing.protocol %q is not grpc or http", cfg.Protocol)
}

// initTracerProvider installs an OTLP tracer provider for the file spans.
// With tracing disabled it returns a nil provider and a no-op shutdown.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	ctx := context.Background()
	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("span exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("rbf")))
	if err != nil {
		return nil, nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	logger.Debug("Tracing enabled.", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	timeout := config.ParseDuration(cfg.ShutdownTimeout, 5*time.Second, logger)
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Spans may be lost; tracer shutdown failed.", "error", err)
		}
	}
	return tp, shutdown, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: rbf [-config path] <command> [flags] <file>\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "rbf.yaml", "Path to the configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, ok := lookupCommand(flag.Arg(0))
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	if cfg.File.DebugIO {
		sys.SetDebugLogger(logger)
		sys.SetDebugMode(true)
	}

	tp, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}

	hookManager := hooks.NewHookManager(logger)
	overhead := listeners.NewFramingOverheadListener(logger)
	hookManager.Register(hooks.EventPostFrameAppend, overhead)
	hookManager.Register(hooks.EventPostScanReverse, listeners.NewRecoveryAlerterListener(logger))

	env := &environment{
		cfg:         cfg,
		logger:      logger,
		hookManager: hookManager,
		stdout:      os.Stdout,
		stdin:       os.Stdin,
		table:       term.IsTerminal(int(os.Stdout.Fd())),
	}
	if tp != nil {
		env.tracer = tp.Tracer("rbf")
	}

	runErr := cmd.run(env, flag.Args()[1:])
	hookManager.Stop()
	tracerCleanup()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		if errors.Is(runErr, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
