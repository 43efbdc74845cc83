// Command firepanel serves the admin-console backend: the callable RPCs and
// the auth/firestore trigger entry points.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firepanel/fnsvc"
	"firepanel/healthz"
	"firepanel/httpmetrics"

	"github.com/golang/glog"
)

var (
	listen      = flag.String("listen", "0.0.0.0:8080", "Server address:port for the callable and trigger endpoints.")
	debugListen = flag.String("debug-listen", "127.0.0.1:8001", "Server address:port for debug endpoint.")
	dataProject = flag.String("data-project", "", "GCP project that contains the application state.")
)

func main() {
	flag.Parse()

	glog.Infof("flags:")
	glog.Infof("listen: %v", *listen)
	glog.Infof("debug-listen: %v", *debugListen)
	glog.Infof("data-project: %v", *dataProject)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := do(ctx); err != nil {
		glog.Exitf("Error: %v", err)
	}
}

func do(ctx context.Context) error {
	if *dataProject == "" {
		return fmt.Errorf("--data-project is required")
	}

	services := fnsvc.NewServices(*dataProject)

	fstore, err := services.Firestore(ctx)
	if err != nil {
		return fmt.Errorf("while creating Firestore client: %w", err)
	}
	authClient, err := services.Auth(ctx)
	if err != nil {
		return fmt.Errorf("while creating Auth client: %w", err)
	}

	store := fnsvc.NewFirestoreStore(fstore)
	server := fnsvc.NewServer(
		authClient,
		store,
		fnsvc.NewReconciler(authClient, store),
		fnsvc.NewLifecycle(store),
	)

	serveMux := http.NewServeMux()
	server.Register(serveMux)

	metrics := httpmetrics.New(serveMux)
	metrics.RegisterMetrics()

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: metrics,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	debugServeMux := http.NewServeMux()
	debugServeMux.Handle("/healthz", healthz.New())
	debugServeMux.Handle("/readyz", healthz.New())
	debugServeMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugServeMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugServeMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugServeMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugServeMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	debugServer := &http.Server{
		Addr:    *debugListen,
		Handler: debugServeMux,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			glog.Fatalf("Server died: %v", err)
		}
	}()

	go func() {
		if err := debugServer.ListenAndServe(); err != nil {
			glog.Fatalf("Debug server died: %v", err)
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh

	glog.Flush()

	return nil
}
