// Command admin runs the administration HTTP service of spec.md §6:
// plant registration/directory, the CO2 average statistic, and a live
// WebSocket feed of the plant directory. Grounded on
// control_plane/main.go's wiring style (construct components, mount
// handlers, serve, block on a signal), simplified to this domain's
// single in-process store instead of the teacher's Redis/Postgres
// backend (spec.md's "no persistence" Non-goal).
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nic0-o1/DPS-DESM/internal/adminserver"
	"github.com/nic0-o1/DPS-DESM/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to admin YAML config")
	flag.Parse()

	cfg, err := config.LoadAdmin(*configPath)
	if err != nil {
		log.Fatalf("admin: failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("admin: received shutdown signal")
		cancel()
	}()

	store := adminserver.NewStore()
	feed := adminserver.NewLiveFeed(store)
	go feed.Run(ctx)

	srv := adminserver.New(store, feed, log.Default())

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("admin: HTTP server stopped: %v", err)
			cancel()
		}
	}()

	log.Printf("admin: listening on %s", cfg.ListenAddr)

	<-ctx.Done()
	log.Println("admin: shutting down")
	httpSrv.Shutdown(context.Background())
}
