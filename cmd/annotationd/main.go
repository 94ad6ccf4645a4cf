// Package main provides a development annotation service: an in-memory
// web-annotation container the sync daemon can be pointed at during testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/listenupapp/listenup-bookmarks/internal/annotationserver"
	"github.com/listenupapp/listenup-bookmarks/internal/logger"
)

func main() {
	addr := flag.String("addr", ":8910", "listen address")
	baseURL := flag.String("base-url", "", "public base URL for generated annotation ids (default derived from addr)")
	flag.Parse()

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel("debug"),
		AddSource:   false,
		Environment: "development",
	})

	external := *baseURL
	if external == "" {
		host := *addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		external = "http://" + host
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           annotationserver.New(external, log.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Annotation container listening", "addr", *addr, "base_url", external)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down annotation container...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Shutdown error", "error", err)
	}
}
