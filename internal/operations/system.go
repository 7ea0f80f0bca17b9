/*
Copyright IBM Corp All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operations

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	kitstatsd "github.com/go-kit/kit/metrics/statsd"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/hyperledger/fabric-lib-go/common/metrics/disabled"
	"github.com/hyperledger/fabric-lib-go/common/metrics/prometheus"
	"github.com/hyperledger/fabric-lib-go/common/metrics/statsd"
	"github.com/hyperledger/fabric-lib-go/common/metrics/statsd/goruntime"
	"github.com/hyperledger/fabric-lib-go/healthz"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Logger interface {
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Infof(template string, args ...interface{})
}

type Statsd struct {
	Network       string
	Address       string
	WriteInterval time.Duration
	Prefix        string
}

type MetricsOptions struct {
	Provider string
	Statsd   *Statsd
}

type Options struct {
	Logger        Logger
	ListenAddress string
	Metrics       MetricsOptions
	Version       string
	CommitSHA     string
}

// System serves /healthz, /version and, with the prometheus provider,
// /metrics. It doubles as the process metrics provider.
type System struct {
	metrics.Provider

	logger          Logger
	options         Options
	router          *mux.Router
	healthHandler   *healthz.HealthHandler
	statsd          *kitstatsd.Statsd
	collectorTicker *time.Ticker
	sendTicker      *time.Ticker
	versionGauge    metrics.Gauge

	mutex      sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

func NewSystem(o Options) *System {
	logger := o.Logger
	if logger == nil {
		logger = flogging.MustGetLogger("inrc.operations")
	}

	system := &System{
		logger:  logger,
		options: o,
		router:  mux.NewRouter(),
	}

	system.initializeHealthCheckHandler()
	system.initializeMetricsProvider()
	system.initializeVersionInfoHandler()

	return system
}

// RegisterHandler exposes an additional handler on the operations router.
func (s *System) RegisterHandler(path string, handler http.Handler, methods ...string) {
	route := s.router.Handle(path, handler)
	if len(methods) > 0 {
		route.Methods(methods...)
	}
}

func (s *System) RegisterChecker(component string, checker healthz.HealthChecker) error {
	return s.healthHandler.RegisterChecker(component, checker)
}

// Addr returns the bound listen address once the system has started.
func (s *System) Addr() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *System) Start() error {
	if err := s.startMetricsTickers(); err != nil {
		return err
	}

	s.versionGauge.With("version", s.options.Version).Set(1)

	listener, err := net.Listen("tcp", s.options.ListenAddress)
	if err != nil {
		s.stopMetricsTickers()
		return errors.Wrapf(err, "failed to listen on %s", s.options.ListenAddress)
	}

	server := &http.Server{
		Handler: handlers.RecoveryHandler(
			handlers.RecoveryLogger(recoveryLogger{s.logger}),
			handlers.PrintRecoveryStack(true),
		)(s.router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mutex.Lock()
	s.listener = listener
	s.httpServer = server
	s.mutex.Unlock()

	go server.Serve(listener)
	s.logger.Infof("Operations server listening on %s", listener.Addr())
	return nil
}

func (s *System) Stop() error {
	s.stopMetricsTickers()

	s.mutex.Lock()
	server := s.httpServer
	s.httpServer, s.listener = nil, nil
	s.mutex.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// Run implements ifrit.Runner.
func (s *System) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	if err := s.Start(); err != nil {
		return err
	}
	close(ready)
	<-signals
	return s.Stop()
}

// Log implements the go-kit logger required by the statsd client.
func (s *System) Log(keyvals ...interface{}) error {
	s.logger.Warn(keyvals...)
	return nil
}

func (s *System) initializeMetricsProvider() {
	m := s.options.Metrics
	providerType := m.Provider
	switch providerType {
	case "statsd":
		prefix := ""
		if m.Statsd != nil {
			prefix = m.Statsd.Prefix
		}
		if prefix != "" && !strings.HasSuffix(prefix, ".") {
			prefix = prefix + "."
		}

		ks := kitstatsd.New(prefix, s)
		s.Provider = &statsd.Provider{Statsd: ks}
		s.statsd = ks

	case "prometheus":
		s.Provider = &prometheus.Provider{}
		s.RegisterHandler("/metrics", promhttp.Handler(), http.MethodGet)

	default:
		if providerType != "disabled" && providerType != "" {
			s.logger.Warnf("Unknown provider type: %s; metrics disabled", providerType)
		}
		s.Provider = &disabled.Provider{}
	}
	s.versionGauge = versionGauge(s.Provider)
}

func (s *System) initializeHealthCheckHandler() {
	s.healthHandler = healthz.NewHealthHandler()
	s.RegisterHandler("/healthz", s.healthHandler)
}

func (s *System) initializeVersionInfoHandler() {
	versionInfo := &VersionInfoHandler{
		Logger: s.logger,
		VersionInfo: &VersionInfo{
			CommitSHA: s.options.CommitSHA,
			Version:   s.options.Version,
		},
	}
	s.RegisterHandler("/version", versionInfo)
}

func (s *System) startMetricsTickers() error {
	if s.statsd == nil {
		return nil
	}

	opts := s.options.Metrics.Statsd
	if opts == nil || opts.Address == "" {
		return errors.New("statsd metrics require an address")
	}
	c, err := net.Dial(opts.Network, opts.Address)
	if err != nil {
		return err
	}
	c.Close()

	writeInterval := opts.WriteInterval
	if writeInterval <= 0 {
		writeInterval = 10 * time.Second
	}

	s.collectorTicker = time.NewTicker(writeInterval / 2)
	goCollector := goruntime.NewCollector(s.Provider)
	go goCollector.CollectAndPublish(s.collectorTicker.C)

	s.sendTicker = time.NewTicker(writeInterval)
	go s.statsd.SendLoop(context.TODO(), s.sendTicker.C, opts.Network, opts.Address)

	return nil
}

func (s *System) stopMetricsTickers() {
	if s.collectorTicker != nil {
		s.collectorTicker.Stop()
		s.collectorTicker = nil
	}
	if s.sendTicker != nil {
		s.sendTicker.Stop()
		s.sendTicker = nil
	}
}

type recoveryLogger struct {
	logger Logger
}

func (r recoveryLogger) Println(args ...interface{}) {
	r.logger.Errorf("operations handler panic: %s", strings.TrimSpace(fmt.Sprintln(args...)))
}
