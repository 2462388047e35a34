package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/server"
)

type cmdServe struct {
	Address string `long:"address" env:"ADDRESS" default:"127.0.0.1:4210" description:"Address to serve the wire protocol on"`
	Metrics string `long:"metrics" env:"METRICS" description:"Address to serve Prometheus metrics on, at /metrics. Disabled if empty"`
}

func (cmd *cmdServe) Execute([]string) error {
	startup()

	var a, err = area()
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", cmd.Address)
	if err != nil {
		return errors.WithMessage(err, "failed to listen")
	}

	if cmd.Metrics != "" {
		var registry = prometheus.NewRegistry()
		registry.MustRegister(opfs.Collectors()...)

		var mux = http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		go func() {
			if err := http.ListenAndServe(cmd.Metrics, mux); err != nil {
				log.WithField("err", err).Error("metrics server failed")
			}
		}()
	}

	var srv = server.New(a)
	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		var sig = <-signalCh
		log.WithField("signal", sig).Info("caught signal; stopping")
		_ = srv.Close()
	}()

	log.WithFields(log.Fields{
		"root":    baseCfg.Root,
		"address": listener.Addr().String(),
		"metrics": cmd.Metrics,
	}).Info("starting opfsctl server")

	return srv.Serve(listener)
}
