// Command statsrelay runs the adaptive sampling and aggregation engine
// as a standalone statsd-protocol relay: ingest over UDP/TCP, sample
// and aggregate per spec.md, flush summarized lines on a fixed window
// cadence, and optionally forward passed-through lines downstream.
package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/lyft/statsrelay/internal/config"
	"github.com/lyft/statsrelay/internal/engine"
	"github.com/lyft/statsrelay/internal/httpapi"
	"github.com/lyft/statsrelay/internal/listener"
	"github.com/lyft/statsrelay/internal/shard"
	"github.com/lyft/statsrelay/internal/stats"
)

func main() {
	configPath := pflag.String("config", "", "path to statsrelay TOML config")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("loading config")
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// recorder's buckets-tracked gauge polls shardSet lazily (only at
	// scrape time), so it can be constructed before shardSet exists;
	// shardSet itself needs recorder to hand each engine via WithStats.
	var shardSet *shard.Set
	registry := prometheus.NewRegistry()
	recorder := stats.New(registry, func() float64 {
		if shardSet == nil {
			return 0
		}
		return float64(shardSet.Len())
	})

	shardSet = buildShards(cfg, logAdapter{log}, recorder)

	lsn := listener.New(shardSet, logAdapter{log}, cfg.MaxTCPConnections, cfg.AllowedPendingMessages)
	lsn.OnRejected = recorder.ObserveLineRejected
	lsn.OnReceived = recorder.ObserveLineReceived

	if cfg.ForwardAddress != "" {
		conn, err := net.Dial("udp", cfg.ForwardAddress)
		if err != nil {
			log.WithError(err).Fatal("dialing forward address")
		}
		defer conn.Close()
		lsn.ForwardWriter = bufio.NewWriter(conn)
	}

	if cfg.UDPAddress != "" {
		if err := lsn.ListenUDP(cfg.UDPAddress); err != nil {
			log.WithError(err).Fatal("starting udp listener")
		}
	}
	if cfg.TCPAddress != "" {
		if err := lsn.ListenTCP(cfg.TCPAddress); err != nil {
			log.WithError(err).Fatal("starting tcp listener")
		}
	}

	var httpServer *http.Server
	if cfg.HTTPAddress != "" {
		router := httpapi.Router(registry, shardSet)
		httpServer = &http.Server{Addr: cfg.HTTPAddress, Handler: router}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server exited")
			}
		}()
		log.Infof("http listening on %q", cfg.HTTPAddress)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(cfg.Window())
	defer ticker.Stop()

	forward := lsn.ForwardWriter
	for {
		select {
		case <-ticker.C:
			shardSet.FlushAll(func(_ string, line []byte) {
				if forward == nil {
					return
				}
				forward.Write(line)
				forward.WriteByte('\n')
			})
			if forward != nil {
				forward.Flush()
			}
		case <-ctx.Done():
			log.Info("shutting down")
			lsn.Stop()
			if httpServer != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = httpServer.Shutdown(shutdownCtx)
				shutdownCancel()
			}
			return
		}
	}
}

// buildShards constructs cfg.Shards independent engines, each with its
// own bucket table and random source, per spec.md §5's single-goroutine
// confinement requirement. Every engine reports through the same
// recorder, so per-shard counters aggregate into one process-wide metric.
func buildShards(cfg config.Config, log logAdapter, recorder *stats.Recorder) *shard.Set {
	engines := make([]shard.Engine, cfg.Shards)
	for i := range engines {
		engines[i] = engine.New(cfg.Threshold, cfg.Window(), cfg.ReservoirSize,
			engine.WithLogger(log), engine.WithStats(recorder))
	}
	return shard.New(engines)
}

// logAdapter satisfies both sampling.Logger and listener.Logger against
// a single *logrus.Logger, the way the teacher wraps its own
// telegraf.Logger interface.
type logAdapter struct {
	log *logrus.Logger
}

func (l logAdapter) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l logAdapter) Infof(format string, args ...interface{})  { l.log.Infof(format, args...) }
func (l logAdapter) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
func (l logAdapter) Warnf(format string, args ...interface{})  { l.log.Warnf(format, args...) }
