//go:build linux

// Command qrtr-nsd runs the QRTR name service daemon: it answers control
// and legacy lookup-port protocol packets against an in-memory registry
// of (service, instance) bindings.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/qrtr-project/qrtr-ns/daemon"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\nnote: if env_file is provided, config from the environment is ignored\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		x, err := readEnv(pflag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
		e = x
	}

	log := newLogger(getEnv("QRTR_NS_LOG_LEVEL", e))

	withLegacy := true
	if v, ok := getEnv("QRTR_NS_LEGACY_PORT", e); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			withLegacy = b
		}
	}

	d, err := daemon.New(daemon.Options{WithLegacyPort: withLegacy, Log: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize daemon")
	}
	defer d.Close()

	if addr, ok := getEnv("QRTR_NS_METRICS_ADDR", e); ok && addr != "" {
		startMetricsServer(log, addr, d)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		d.Close()
	}()

	if err := d.Run(); err != nil {
		log.Fatal().Err(err).Msg("daemon exited")
	}
}

func newLogger(level string, ok bool) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if ok {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

func startMetricsServer(log zerolog.Logger, addr string, d *daemon.Daemon) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		d.WritePrometheus(w)
	})
	mux.HandleFunc("/debug/registry", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := d.WriteRegistryDump(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	go func() {
		log.Info().Str("addr", addr).Msg("starting metrics server")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
}

func getEnv(k string, e []string) (string, bool) {
	for _, x := range e {
		if xk, xv, ok := strings.Cut(x, "="); ok && xk == k {
			return xv, true
		}
	}
	return "", false
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	r := make([]string, 0, len(m))
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
