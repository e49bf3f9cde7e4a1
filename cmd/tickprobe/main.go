package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avolia/tickprobe/probe"
	probequic "github.com/avolia/tickprobe/transport/probe-quic"
)

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:25570", "address to listen on (server) or connect to (client)")
		runType  = flag.String("type", "server", "role to run: server or client")
		duration = flag.Int("duration", 10, "test duration in seconds")
		cfgPath  = flag.String("config", "", "optional TOML config file")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := probe.DefaultConfig()
	cfg.Duration = time.Duration(*duration) * time.Second
	if *cfgPath != "" {
		var err error
		cfg, err = loadConfig(*cfgPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tickprobe: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "tickprobe: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var err error
	switch *runType {
	case "server":
		err = runServer(ctx, cfg, *addr, logger)
	case "client":
		err = runClient(ctx, cfg, *addr, logger)
	default:
		err = fmt.Errorf("unknown run type %q (want server or client)", *runType)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tickprobe: %v\n", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg probe.Config, addr string, logger *slog.Logger) error {
	logger.Info("server starting", "addr", addr)

	transport, err := probequic.NewServer(addr, probe.NewCodec(), logger)
	if err != nil {
		return fmt.Errorf("start server transport: %w", err)
	}
	defer transport.Close()

	report, err := probe.NewServerRole(cfg, transport, logger).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Print(report)
	return nil
}

func runClient(ctx context.Context, cfg probe.Config, addr string, logger *slog.Logger) error {
	logger.Info("client connecting", "addr", addr)

	transport, err := probequic.Dial(ctx, addr, probe.NewCodec(), logger)
	if err != nil {
		return fmt.Errorf("start client transport: %w", err)
	}
	defer transport.Close()

	report, err := probe.NewClientRole(cfg, transport, logger).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Print(report)
	return nil
}
