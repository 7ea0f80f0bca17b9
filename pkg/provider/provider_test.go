/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package provider_test

import (
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/msp"
	"github.com/inrcfi/inrc/internal/pkg/identity/identitytest"
	"github.com/inrcfi/inrc/pkg/provider"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

func setenv(key, value string) {
	old, present := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if present {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func serve(opts ...grpc.ServerOption) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	server := grpc.NewServer(opts...)
	go server.Serve(lis)
	DeferCleanup(server.Stop)
	return lis.Addr().String()
}

var _ = Describe("Config", func() {
	It("applies defaults", func() {
		conf, err := provider.ConfigFromEnv()
		Expect(err).NotTo(HaveOccurred())
		Expect(conf.PeerAddress).To(Equal(provider.DefaultPeerAddress))
		Expect(conf.DialTimeout).To(Equal(provider.DefaultDialTimeout))
		Expect(conf.CommitTimeout).To(Equal(provider.DefaultCommitTimeout))
		Expect(filepath.IsAbs(conf.Workspace)).To(BeTrue())
		Expect(filepath.Base(conf.Workspace)).To(Equal(provider.DefaultWorkspace))
	})

	It("reads the INRC environment", func() {
		setenv("INRC_PEER_ADDRESS", "peer0.org1:7051")
		setenv("INRC_MSP_ID", "Org1MSP")
		setenv("INRC_MSP_CERT_PATH", "/etc/inrc/cert.pem")
		setenv("INRC_MSP_KEY_PATH", "/etc/inrc/key_sk")
		setenv("INRC_TLS_ENABLED", "true")
		setenv("INRC_TLS_SERVERHOSTOVERRIDE", "peer0")
		setenv("INRC_DIAL_TIMEOUT", "3s")
		setenv("INRC_COMMIT_TIMEOUT", "45s")

		conf, err := provider.ConfigFromEnv()
		Expect(err).NotTo(HaveOccurred())
		Expect(conf.PeerAddress).To(Equal("peer0.org1:7051"))
		Expect(conf.MSP).To(Equal(provider.MSPConfig{
			ID:       "Org1MSP",
			CertPath: "/etc/inrc/cert.pem",
			KeyPath:  "/etc/inrc/key_sk",
		}))
		Expect(conf.TLS.Enabled).To(BeTrue())
		Expect(conf.TLS.ServerNameOverride).To(Equal("peer0"))
		Expect(conf.DialTimeout).To(Equal(3 * time.Second))
		Expect(conf.CommitTimeout).To(Equal(45 * time.Second))
		Expect(conf.Validate()).To(Succeed())
	})

	It("resolves file paths relative to the config file", func() {
		dir := GinkgoT().TempDir()
		yaml := strings.Join([]string{
			"peerAddress: peer1:9051",
			"dialTimeout: 2s",
			"msp:",
			"  id: Org2MSP",
			"  certPath: msp/cert.pem",
			"  keyPath: /abs/key_sk",
			"tls:",
			"  enabled: true",
			"  rootCertFile: tls/ca.crt",
			"workspace: workspace.yaml",
		}, "\n")
		Expect(os.WriteFile(filepath.Join(dir, "inrc.yaml"), []byte(yaml), 0o644)).To(Succeed())

		v := viper.New()
		v.SetConfigFile(filepath.Join(dir, "inrc.yaml"))
		Expect(v.ReadInConfig()).To(Succeed())
		Expect(provider.BindEnv(v)).To(Succeed())
		setenv("INRC_MSP_ID", "OverrideMSP")

		conf, err := provider.LoadConfig(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(conf.PeerAddress).To(Equal("peer1:9051"))
		Expect(conf.DialTimeout).To(Equal(2 * time.Second))
		Expect(conf.MSP.ID).To(Equal("OverrideMSP"))
		Expect(conf.MSP.CertPath).To(Equal(filepath.Join(dir, "msp/cert.pem")))
		Expect(conf.MSP.KeyPath).To(Equal("/abs/key_sk"))
		Expect(conf.TLS.RootCertFile).To(Equal(filepath.Join(dir, "tls/ca.crt")))
		Expect(conf.Workspace).To(Equal(filepath.Join(dir, "workspace.yaml")))
	})

	DescribeTable("validation",
		func(mutate func(*provider.Config), expected string) {
			conf := provider.Config{
				PeerAddress: "peer0:7051",
				MSP:         provider.MSPConfig{ID: "Org1MSP", CertPath: "cert.pem", KeyPath: "key_sk"},
			}
			mutate(&conf)
			Expect(conf.Validate()).To(MatchError(ContainSubstring(expected)))
		},
		Entry("peer address", func(c *provider.Config) { c.PeerAddress = "" }, "peer address must be set"),
		Entry("msp id", func(c *provider.Config) { c.MSP.ID = "" }, "msp id must be set"),
		Entry("msp cert", func(c *provider.Config) { c.MSP.CertPath = "" }, "msp certificate path must be set"),
		Entry("msp key", func(c *provider.Config) { c.MSP.KeyPath = "" }, "msp key path must be set"),
		Entry("client auth", func(c *provider.Config) { c.TLS.ClientAuthRequired = true }, "client certificate and key files are required"),
	)
})

var _ = Describe("Provider", func() {
	var (
		enrollment *identitytest.Enrollment
		conf       provider.Config
	)

	BeforeEach(func() {
		var err error
		enrollment, err = identitytest.NewEnrollment(GinkgoT().TempDir(), "client", identitytest.PKCS8)
		Expect(err).NotTo(HaveOccurred())
		conf = provider.Config{
			MSP: provider.MSPConfig{
				ID:       "Org1MSP",
				CertPath: enrollment.CertPath,
				KeyPath:  enrollment.KeyPath,
			},
			DialTimeout: 5 * time.Second,
		}
	})

	It("connects from the environment", func() {
		address := serve()
		setenv("INRC_PEER_ADDRESS", address)
		setenv("INRC_MSP_ID", "Org1MSP")
		setenv("INRC_MSP_CERT_PATH", enrollment.CertPath)
		setenv("INRC_MSP_KEY_PATH", enrollment.KeyPath)

		p, err := provider.Env()
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		Expect(p.Conn()).NotTo(BeNil())
		Expect(p.Config().PeerAddress).To(Equal(address))

		creator, err := p.Signer().Serialize()
		Expect(err).NotTo(HaveOccurred())
		sid := &msp.SerializedIdentity{}
		Expect(proto.Unmarshal(creator, sid)).To(Succeed())
		Expect(sid.Mspid).To(Equal("Org1MSP"))
		Expect(sid.IdBytes).To(Equal(enrollment.CertPEM))

		sig, err := p.Signer().Sign([]byte("initialize"))
		Expect(err).NotTo(HaveOccurred())
		Expect(sig).NotTo(BeEmpty())
	})

	It("connects over TLS", func() {
		server, err := identitytest.NewEnrollment(GinkgoT().TempDir(), "peer0", identitytest.SEC1)
		Expect(err).NotTo(HaveOccurred())
		cert, err := tls.X509KeyPair(server.CertPEM, server.KeyPEM)
		Expect(err).NotTo(HaveOccurred())
		conf.PeerAddress = serve(grpc.Creds(credentials.NewTLS(&tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})))
		conf.TLS = provider.TLSConfig{
			Enabled:            true,
			RootCertFile:       server.CertPath,
			ServerNameOverride: "localhost",
		}

		p, err := provider.New(conf)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("fails without a valid configuration", func() {
		_, err := provider.New(provider.Config{})
		Expect(err).To(MatchError("peer address must be set (INRC_PEER_ADDRESS)"))
	})

	It("fails when the identity cannot be loaded", func() {
		conf.PeerAddress = "127.0.0.1:1"
		conf.MSP.KeyPath = filepath.Join(GinkgoT().TempDir(), "missing_sk")
		_, err := provider.New(conf)
		Expect(err).To(MatchError(ContainSubstring("failed to load signing identity")))
	})

	It("fails when the TLS root certificate is missing", func() {
		conf.PeerAddress = "127.0.0.1:1"
		conf.TLS = provider.TLSConfig{Enabled: true, RootCertFile: "/nonexistent/ca.crt"}
		_, err := provider.New(conf)
		Expect(err).To(MatchError(ContainSubstring("unable to load TLS root cert file from /nonexistent/ca.crt")))
	})

	It("fails when the peer is unreachable", func() {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		conf.PeerAddress = lis.Addr().String()
		lis.Close()
		conf.DialTimeout = 500 * time.Millisecond

		_, err = provider.New(conf)
		Expect(err).To(MatchError(ContainSubstring("failed to create new connection to " + conf.PeerAddress)))
	})
})
