/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package network

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Topology describes the nodes of a network to generate the configurations of
type Topology struct {
	Notary     string
	Parties    []string
	Validating bool
	// Persistence is badger or memory
	Persistence string
	// WebPort is the port of the first party, the others follow. Zero disables the web servers.
	WebPort     int
	LoggingSpec string

	SessionTimeout time.Duration
	NotaryTimeout  time.Duration
	NotaryRetries  int
	RetryDelay     time.Duration
	RetryInterval  time.Duration
}

// NewTopology returns a topology of durable nodes with the default timeouts
func NewTopology(notary string, parties ...string) *Topology {
	return &Topology{
		Notary:         notary,
		Parties:        parties,
		Validating:     true,
		Persistence:    "badger",
		LoggingSpec:    "info",
		SessionTimeout: 30 * time.Second,
		NotaryTimeout:  30 * time.Second,
		NotaryRetries:  3,
		RetryDelay:     time.Second,
		RetryInterval:  10 * time.Second,
	}
}

type coreConfig struct {
	Logging loggingConfig `yaml:"logging"`
	FSC     fscConfig     `yaml:"fsc"`
	IOU     iouConfig     `yaml:"iou"`
}

type loggingConfig struct {
	Spec   string `yaml:"spec"`
	Format string `yaml:"format"`
}

type fscConfig struct {
	ID  string     `yaml:"id"`
	KVS kvsConfig  `yaml:"kvs"`
	Web *webConfig `yaml:"web,omitempty"`
}

type kvsConfig struct {
	Persistence persistenceConfig `yaml:"persistence"`
	Cache       cacheConfig       `yaml:"cache"`
}

type persistenceConfig struct {
	Type string            `yaml:"type"`
	Opts map[string]string `yaml:"opts,omitempty"`
}

type cacheConfig struct {
	Size int `yaml:"size"`
}

type webConfig struct {
	Address string `yaml:"address"`
}

type iouConfig struct {
	Notary       string             `yaml:"notary"`
	Validating   bool               `yaml:"validating"`
	Timeouts     timeoutsConfig     `yaml:"timeouts"`
	Retries      retriesConfig      `yaml:"retries"`
	Distribution distributionConfig `yaml:"distribution"`
}

type timeoutsConfig struct {
	Session string `yaml:"session"`
	Notary  string `yaml:"notary"`
}

type retriesConfig struct {
	Notary int    `yaml:"notary"`
	Delay  string `yaml:"delay"`
}

type distributionConfig struct {
	RetryInterval string `yaml:"retryInterval"`
}

// Generate writes the core.yaml of every node under dir/<name>, and returns the configuration directories,
// the notary first
func (t *Topology) Generate(dir string) ([]string, error) {
	if len(t.Notary) == 0 {
		return nil, errors.New("notary not set")
	}
	names := append([]string{t.Notary}, t.Parties...)
	seen := map[string]bool{}
	var confPaths []string
	for i, name := range names {
		if len(name) == 0 || seen[name] {
			return nil, errors.Errorf("invalid or duplicate node name [%s]", name)
		}
		seen[name] = true

		confPath := filepath.Join(dir, name)
		if err := os.MkdirAll(confPath, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed creating [%s]", confPath)
		}
		raw, err := yaml.Marshal(t.config(name, i, confPath))
		if err != nil {
			return nil, errors.Wrapf(err, "failed marshalling configuration of [%s]", name)
		}
		if err := os.WriteFile(filepath.Join(confPath, configFileName), raw, 0o644); err != nil {
			return nil, errors.Wrapf(err, "failed writing configuration of [%s]", name)
		}
		confPaths = append(confPaths, confPath)
	}
	return confPaths, nil
}

// config returns the configuration of the i-th node, the notary being the 0-th
func (t *Topology) config(name string, i int, confPath string) *coreConfig {
	c := &coreConfig{
		Logging: loggingConfig{Spec: t.LoggingSpec, Format: "logfmt"},
		FSC: fscConfig{
			ID: name,
			KVS: kvsConfig{
				Persistence: persistenceConfig{Type: t.Persistence},
				Cache:       cacheConfig{Size: 100},
			},
		},
		IOU: iouConfig{
			Notary:     t.Notary,
			Validating: t.Validating,
			Timeouts: timeoutsConfig{
				Session: t.SessionTimeout.String(),
				Notary:  t.NotaryTimeout.String(),
			},
			Retries: retriesConfig{
				Notary: t.NotaryRetries,
				Delay:  t.RetryDelay.String(),
			},
			Distribution: distributionConfig{RetryInterval: t.RetryInterval.String()},
		},
	}
	if t.Persistence == "badger" {
		abs, err := filepath.Abs(filepath.Join(confPath, "data"))
		if err != nil {
			abs = filepath.Join(confPath, "data")
		}
		c.FSC.KVS.Persistence.Opts = map[string]string{"path": abs}
	}
	if t.WebPort > 0 && i > 0 {
		c.FSC.Web = &webConfig{Address: fmt.Sprintf("127.0.0.1:%d", t.WebPort+i-1)}
	}
	return c
}
