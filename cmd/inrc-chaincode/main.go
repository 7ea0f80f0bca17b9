/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"os"
	"syscall"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-lib-go/common/flogging"
	"github.com/inrcfi/inrc/chaincode/vault"
	"github.com/inrcfi/inrc/common/metadata"
	"github.com/inrcfi/inrc/internal/operations"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/sigmon"
	"gopkg.in/alecthomas/kingpin.v2"
)

var logger = flogging.MustGetLogger("inrc.chaincode")

var (
	app = kingpin.New("inrc-chaincode", "INRC collateral vault chaincode")

	serverAddress = app.Flag("server-address", "Serve the chaincode as an external service on this address.").Envar("CHAINCODE_SERVER_ADDRESS").String()
	chaincodeID   = app.Flag("chaincode-id", "Package id of the chaincode when run as an external service.").Envar("CHAINCODE_ID").String()
	tlsKeyFile    = app.Flag("tls-key-file", "TLS key of the chaincode server.").Envar("CHAINCODE_TLS_KEY_FILE").ExistingFile()
	tlsCertFile   = app.Flag("tls-cert-file", "TLS certificate of the chaincode server.").Envar("CHAINCODE_TLS_CERT_FILE").ExistingFile()
	tlsClientCA   = app.Flag("tls-client-ca-file", "CA certificate required of connecting peers.").Envar("CHAINCODE_TLS_CLIENT_CA_FILE").ExistingFile()
	logSpec       = app.Flag("logging-spec", "Logging spec.").Envar("CHAINCODE_LOGGING_SPEC").Default("info").String()

	operationsAddress = app.Flag("operations-address", "Operations server listen address; empty disables it.").Envar("CHAINCODE_OPERATIONS_LISTENADDRESS").String()
	metricsProvider   = app.Flag("metrics-provider", "Metrics provider: prometheus, statsd or disabled.").Envar("CHAINCODE_METRICS_PROVIDER").Default("disabled").Enum("prometheus", "statsd", "disabled")
	statsdAddress     = app.Flag("statsd-address", "Statsd server address.").Envar("CHAINCODE_METRICS_STATSD_ADDRESS").Default("127.0.0.1:8125").String()
	statsdInterval    = app.Flag("statsd-write-interval", "Statsd write interval.").Envar("CHAINCODE_METRICS_STATSD_WRITEINTERVAL").Default("10s").Duration()
	statsdPrefix      = app.Flag("statsd-prefix", "Statsd metric prefix.").Envar("CHAINCODE_METRICS_STATSD_PREFIX").String()
)

func main() {
	app.Version(metadata.Version)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	flogging.Init(flogging.Config{
		Format:  "%{color}%{time:2006-01-02 15:04:05.000 MST} [%{module}] %{shortfunc} -> %{level:.4s} %{id:03x}%{color:reset} %{message}",
		Writer:  os.Stderr,
		LogSpec: *logSpec,
	})

	system := operations.NewSystem(operations.Options{
		ListenAddress: *operationsAddress,
		Metrics: operations.MetricsOptions{
			Provider: *metricsProvider,
			Statsd: &operations.Statsd{
				Network:       "udp",
				Address:       *statsdAddress,
				WriteInterval: *statsdInterval,
				Prefix:        *statsdPrefix,
			},
		},
		Version:   metadata.Version,
		CommitSHA: metadata.CommitSHA,
	})
	cc := vault.New(system)

	var members grouper.Members
	if *operationsAddress != "" {
		members = append(members, grouper.Member{Name: "operations", Runner: system})
	}
	members = append(members, grouper.Member{Name: "chaincode", Runner: chaincodeRunner(cc)})

	process := ifrit.Invoke(sigmon.New(grouper.NewOrdered(syscall.SIGTERM, members), syscall.SIGINT, syscall.SIGTERM))
	if err := <-process.Wait(); err != nil {
		logger.Fatalf("Chaincode exited: %s", err)
	}
}

// chaincodeRunner connects to the peer, or serves the peer when a server
// address is configured.
func chaincodeRunner(cc shim.Chaincode) ifrit.Runner {
	return ifrit.RunFunc(func(signals <-chan os.Signal, ready chan<- struct{}) error {
		start := func() error { return shim.Start(cc) }
		if *serverAddress != "" {
			server, err := newServer(cc)
			if err != nil {
				return err
			}
			start = server.Start
			logger.Infof("Serving chaincode %s on %s", *chaincodeID, *serverAddress)
		}

		done := make(chan error, 1)
		go func() { done <- start() }()
		close(ready)

		select {
		case <-signals:
			return nil
		case err := <-done:
			return err
		}
	})
}

func newServer(cc shim.Chaincode) (*shim.ChaincodeServer, error) {
	tlsProps := shim.TLSProperties{Disabled: true}
	if *tlsKeyFile != "" && *tlsCertFile != "" {
		key, err := os.ReadFile(*tlsKeyFile)
		if err != nil {
			return nil, err
		}
		cert, err := os.ReadFile(*tlsCertFile)
		if err != nil {
			return nil, err
		}
		tlsProps = shim.TLSProperties{Key: key, Cert: cert}
		if *tlsClientCA != "" {
			if tlsProps.ClientCACerts, err = os.ReadFile(*tlsClientCA); err != nil {
				return nil, err
			}
		}
	}
	return &shim.ChaincodeServer{
		CCID:     *chaincodeID,
		Address:  *serverAddress,
		CC:       cc,
		TLSProps: tlsProps,
	}, nil
}
