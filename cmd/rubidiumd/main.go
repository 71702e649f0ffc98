// Command rubidiumd is the embedder binary for the runtime core: it
// parses process-level options, constructs a lifecycle.Core, starts it,
// and waits for an interrupt or terminate signal to drive a graceful
// stop. Grounded on the teacher's cmd/coordinator/main.go (flag parsing
// with environment overrides, a signal channel, a bounded shutdown
// window) with the HTTPS API server swapped for the runtime core's own
// lifecycle and a plain metrics HTTP endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rubidium-run/rubidium/internal/bootstrap"
	"github.com/rubidium-run/rubidium/internal/lifecycle"
)

// shutdownTimeout bounds how long rubidiumd waits for Stop to finish
// once a signal arrives, matching spec.md §5's "joins with bounded wait
// (≤2 s)" for scheduler threads plus headroom for unit teardown.
const shutdownTimeout = 10 * time.Second

func main() {
	dataDir := flag.String("data-dir", "", "Runtime core data directory (overrides RUBIDIUM_DATA_DIR)")
	product := flag.String("product", "", "Product name used in log file names (overrides RUBIDIUM_PRODUCT)")
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus metrics on (overrides RUBIDIUM_METRICS_ADDR)")
	flag.Parse()

	opts, err := bootstrap.Load(*envFile)
	if err != nil {
		log.Fatalf("rubidiumd: %v", err)
	}
	if *dataDir != "" {
		opts.DataDir = *dataDir
	}
	if *product != "" {
		opts.Product = *product
	}
	if *metricsAddr != "" {
		opts.MetricsAddr = *metricsAddr
	}

	core, err := lifecycle.New(opts.DataDir, opts.Product)
	if err != nil {
		log.Fatalf("rubidiumd: construct core: %v", err)
	}

	if err := core.Start(); err != nil {
		log.Fatalf("rubidiumd: start core: %v", err)
	}
	log.Printf("rubidiumd: started (data dir %s, product %s)", opts.DataDir, opts.Product)

	metricsServer := &http.Server{
		Addr:    opts.MetricsAddr,
		Handler: core.Metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			core.Logs.Logger("rubidiumd").Error("metrics server error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			log.Println("rubidiumd: SIGHUP received, reloading")
			core.Reload()
			continue
		}
		break
	}

	log.Println("rubidiumd: shutting down")
	done := make(chan struct{})
	go func() {
		core.Stop()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = metricsServer.Shutdown(shutdownCtx)

	select {
	case <-done:
		log.Println("rubidiumd: stopped cleanly")
	case <-shutdownCtx.Done():
		fmt.Fprintln(os.Stderr, "rubidiumd: shutdown timed out")
		os.Exit(1)
	}
}
