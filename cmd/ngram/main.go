// Command ngram runs the document archive server and its client.
//
//	ngram serve    -config configs/development.yaml
//	ngram publish  -addr host:port path/to/document.txt
//	ngram search   -addr host:port word
//	ngram retrieve -addr host:port id
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkatz326/ngram/internal/analytics"
	"github.com/jkatz326/ngram/internal/archive"
	"github.com/jkatz326/ngram/internal/archive/cache"
	"github.com/jkatz326/ngram/internal/client"
	"github.com/jkatz326/ngram/internal/pool"
	"github.com/jkatz326/ngram/internal/server"
	"github.com/jkatz326/ngram/pkg/config"
	"github.com/jkatz326/ngram/pkg/health"
	"github.com/jkatz326/ngram/pkg/kafka"
	"github.com/jkatz326/ngram/pkg/logger"
	"github.com/jkatz326/ngram/pkg/metrics"
	pkgredis "github.com/jkatz326/ngram/pkg/redis"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "publish":
		runPublish(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "retrieve":
		runRetrieve(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ngram <serve|publish|search|retrieve> [flags]")
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	port := fs.Int("port", 0, "override the configured listen port")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting archive server",
		"addr", cfg.Server.Addr(),
		"shards", cfg.Index.Shards,
		"workers", cfg.Pool.Workers,
	)

	store := archive.NewStore(cfg.Index.Shards)
	workers := pool.New(cfg.Pool.Workers, cfg.Pool.QueueDepth)

	opts := server.Options{}

	if cfg.Redis.Enabled() {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts.Cache = cache.New(redisClient, cfg.Redis)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		opts.Collector = collector
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topic)
	}

	if cfg.Metrics.Enabled {
		opts.Metrics = metrics.New(prometheus.DefaultRegisterer)

		checker := health.NewChecker()
		checker.Register("store", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("%d documents", store.Len()),
			}
		})
		checker.Register("worker_pool", func(ctx context.Context) health.ComponentHealth {
			if workers.QueueLen() >= workers.QueueCap() {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "queue full"}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})

		shutdown := metrics.StartServer(cfg.Metrics.Port, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, store, workers, opts)
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		srv.Stop()
	}()

	if err := srv.Run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// clientFlagSet builds the flag set shared by the client subcommands.
func clientFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:7000", "archive server address")
	return fs, addr
}

func runPublish(args []string) {
	fs, addr := clientFlagSet("publish")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ngram publish -addr host:port <path>")
		os.Exit(2)
	}
	id, err := client.New(*addr).PublishFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "publish failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("published document %d\n", id)
}

func runSearch(args []string) {
	fs, addr := clientFlagSet("search")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ngram search -addr host:port <word>")
		os.Exit(2)
	}
	ids, err := client.New(*addr).Search(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		fmt.Println("no documents found")
		return
	}
	fmt.Printf("found %d document(s): %v\n", len(ids), ids)
}

func runRetrieve(args []string) {
	fs, addr := clientFlagSet("retrieve")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ngram retrieve -addr host:port <id>")
		os.Exit(2)
	}
	id, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid document id %q\n", fs.Arg(0))
		os.Exit(2)
	}
	text, err := client.New(*addr).Retrieve(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "retrieve failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(text)
}
