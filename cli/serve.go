package cli

import (
	"context"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/a2y-d5l/forge"
	"github.com/a2y-d5l/forge/metrics"
)

// serve runs the event service next to a signal handler and, with a
// metrics address, an HTTP server exposing Prometheus metrics. The first
// actor to return stops the others; a signal is a clean shutdown.
func (a *App) serve(parent context.Context, metricsAddr string, grace time.Duration) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	log := a.logger()

	var (
		g    run.Group
		opts = a.runOptions()
	)

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		obs := metrics.New("forge")
		reg.MustRegister(obs, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, forge.WithObserver(obs))

		ln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return errors.Wrap(err, "metrics listener")
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Add(func() error {
			log.WithField("addr", ln.Addr().String()).Info("serving metrics")
			return srv.Serve(ln)
		}, func(error) {
			sctx, scancel := context.WithTimeout(context.Background(), grace)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.WithError(err).Warn("metrics server shutdown")
			}
		})
	}

	g.Add(func() error {
		return a.Manager.Serve(ctx, opts...)
	}, func(error) {
		cancel()
	})

	err := g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.WithField("signal", sig.Signal.String()).Info("stopped by signal")
		return nil
	}
	if parent.Err() != nil && errors.Is(err, parent.Err()) {
		return nil
	}
	return err
}
