// Package server runs the HTTP endpoint that exposes Prometheus metrics and
// health probes.
//
// The server is deliberately small: a ServeMux wrapped in recovery and
// request logging middleware, started with Start and stopped gracefully when
// its context is cancelled.
//
//	srv := server.New(server.Config{Address: ":9090"})
//	srv.Handle("/metrics", collector.Handler())
//	checker.Mount(srv.Mux())
//	err := srv.Start(ctx) // blocks until ctx is done
package server
