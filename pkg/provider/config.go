/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config describes the peer gateway endpoint and the identity used to
// sign transactions.
type Config struct {
	PeerAddress   string        `mapstructure:"peerAddress"`
	TLS           TLSConfig     `mapstructure:"tls"`
	MSP           MSPConfig     `mapstructure:"msp"`
	DialTimeout   time.Duration `mapstructure:"dialTimeout"`
	CommitTimeout time.Duration `mapstructure:"commitTimeout"`
	Workspace     string        `mapstructure:"workspace"`
}

type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	RootCertFile       string `mapstructure:"rootCertFile"`
	ClientAuthRequired bool   `mapstructure:"clientAuthRequired"`
	ClientCertFile     string `mapstructure:"clientCertFile"`
	ClientKeyFile      string `mapstructure:"clientKeyFile"`
	ServerNameOverride string `mapstructure:"serverNameOverride"`
}

type MSPConfig struct {
	ID       string `mapstructure:"id"`
	CertPath string `mapstructure:"certPath"`
	KeyPath  string `mapstructure:"keyPath"`
}

const (
	DefaultPeerAddress   = "localhost:7051"
	DefaultDialTimeout   = 10 * time.Second
	DefaultCommitTimeout = time.Minute
	DefaultWorkspace     = "workspace.yaml"
)

// envBindings maps configuration keys to the environment variables that
// override them.
var envBindings = map[string]string{
	"peerAddress":            "INRC_PEER_ADDRESS",
	"tls.enabled":            "INRC_TLS_ENABLED",
	"tls.rootCertFile":       "INRC_TLS_ROOTCERT_FILE",
	"tls.clientAuthRequired": "INRC_TLS_CLIENTAUTHREQUIRED",
	"tls.clientCertFile":     "INRC_TLS_CLIENTCERT_FILE",
	"tls.clientKeyFile":      "INRC_TLS_CLIENTKEY_FILE",
	"tls.serverNameOverride": "INRC_TLS_SERVERHOSTOVERRIDE",
	"msp.id":                 "INRC_MSP_ID",
	"msp.certPath":           "INRC_MSP_CERT_PATH",
	"msp.keyPath":            "INRC_MSP_KEY_PATH",
	"dialTimeout":            "INRC_DIAL_TIMEOUT",
	"commitTimeout":          "INRC_COMMIT_TIMEOUT",
	"workspace":              "INRC_WORKSPACE",
}

// BindEnv registers the defaults and INRC_* environment overrides on v.
func BindEnv(v *viper.Viper) error {
	v.SetDefault("peerAddress", DefaultPeerAddress)
	v.SetDefault("dialTimeout", DefaultDialTimeout)
	v.SetDefault("commitTimeout", DefaultCommitTimeout)
	v.SetDefault("workspace", DefaultWorkspace)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return errors.Wrapf(err, "failed to bind %s", env)
		}
	}
	return nil
}

// ConfigFromEnv builds the configuration from INRC_* environment variables
// alone.
func ConfigFromEnv() (Config, error) {
	v := viper.New()
	if err := BindEnv(v); err != nil {
		return Config{}, err
	}
	return LoadConfig(v)
}

// LoadConfig decodes the provider configuration held by v. Relative file
// paths are resolved against the directory of the config file in use, or
// the working directory.
func LoadConfig(v *viper.Viper) (Config, error) {
	conf := Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &conf,
	})
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to create config decoder")
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode provider config")
	}

	base := ""
	if used := v.ConfigFileUsed(); used != "" {
		base = filepath.Dir(used)
	}
	for _, p := range []*string{
		&conf.TLS.RootCertFile,
		&conf.TLS.ClientCertFile,
		&conf.TLS.ClientKeyFile,
		&conf.MSP.CertPath,
		&conf.MSP.KeyPath,
		&conf.Workspace,
	} {
		*p = translatePath(base, *p)
	}

	return conf, nil
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	switch {
	case c.PeerAddress == "":
		return errors.New("peer address must be set (INRC_PEER_ADDRESS)")
	case c.MSP.ID == "":
		return errors.New("msp id must be set (INRC_MSP_ID)")
	case c.MSP.CertPath == "":
		return errors.New("msp certificate path must be set (INRC_MSP_CERT_PATH)")
	case c.MSP.KeyPath == "":
		return errors.New("msp key path must be set (INRC_MSP_KEY_PATH)")
	case c.TLS.ClientAuthRequired && (c.TLS.ClientCertFile == "" || c.TLS.ClientKeyFile == ""):
		return errors.New("client certificate and key files are required when client authentication is enabled")
	}
	return nil
}

func translatePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	return filepath.Join(base, p)
}
