/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package workspace resolves program names to deployed chaincodes.
//
// A workspace file lists every program by name:
//
//	defaultChannel: mychannel
//	programs:
//	  inrc:
//	    chaincode: inrc
//	  contract-new:
//	    channel: vaults
//	    chaincode: contract-new
//
// Names are matched regardless of kebab, snake or camel case, so
// "contract-new", "contract_new" and "contractNew" name the same program.
package workspace

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const DefaultChannel = "mychannel"

// Entry locates one program.
type Entry struct {
	Name      string `yaml:"-"`
	Channel   string `yaml:"channel,omitempty"`
	Chaincode string `yaml:"chaincode,omitempty"`
}

type Workspace struct {
	DefaultChannel string           `yaml:"defaultChannel,omitempty"`
	Programs       map[string]Entry `yaml:"programs"`

	index map[string]string
}

// Load reads and parses a workspace file.
func Load(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read workspace %s", path)
	}
	ws, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid workspace %s", path)
	}
	return ws, nil
}

// Parse decodes a workspace document and fills in defaults.
func Parse(data []byte) (*Workspace, error) {
	ws := &Workspace{}
	if err := yaml.UnmarshalStrict(data, ws); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal workspace")
	}
	if err := ws.build(); err != nil {
		return nil, err
	}
	return ws, nil
}

func (ws *Workspace) build() error {
	if ws.DefaultChannel == "" {
		ws.DefaultChannel = DefaultChannel
	}
	if len(ws.Programs) == 0 {
		return errors.New("workspace defines no programs")
	}

	ws.index = map[string]string{}
	for name, entry := range ws.Programs {
		key := normalize(name)
		if key == "" {
			return errors.Errorf("invalid program name %q", name)
		}
		if other, ok := ws.index[key]; ok {
			return errors.Errorf("program names %q and %q collide", other, name)
		}
		ws.index[key] = name

		entry.Name = name
		if entry.Channel == "" {
			entry.Channel = ws.DefaultChannel
		}
		if entry.Chaincode == "" {
			entry.Chaincode = name
		}
		ws.Programs[name] = entry
	}
	return nil
}

// Lookup returns the program registered under name.
func (ws *Workspace) Lookup(name string) (Entry, error) {
	if registered, ok := ws.index[normalize(name)]; ok {
		return ws.Programs[registered], nil
	}
	return Entry{}, errors.Errorf("program %q not found in workspace; known programs: %s", name, strings.Join(ws.Names(), ", "))
}

// Names lists the registered programs in sorted order.
func (ws *Workspace) Names() []string {
	names := make([]string, 0, len(ws.Programs))
	for name := range ws.Programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal renders the workspace as YAML.
func (ws *Workspace) Marshal() ([]byte, error) {
	return yaml.Marshal(ws)
}

func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r == '-' || r == '_' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
