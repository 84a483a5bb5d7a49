/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/hyperledger-labs/fsc-iou/platform/common/services/logging"
	viperutil "github.com/hyperledger-labs/fsc-iou/platform/view/core/config/viper"
)

const (
	CmdRoot = "core"
)

var logOutput io.Writer = os.Stderr

// Provider reads the node configuration from core.yaml.
// Environment variables prefixed with CORE_ override the file, CORE_LOGGING_SPEC sets logging.spec.
type Provider struct {
	confPath string
	v        *viper.Viper
}

func NewProvider(confPath string) (*Provider, error) {
	p := &Provider{confPath: confPath}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) GetDuration(key string) time.Duration {
	return p.v.GetDuration(key)
}

func (p *Provider) GetBool(key string) bool {
	return p.v.GetBool(key)
}

func (p *Provider) GetInt(key string) int {
	return p.v.GetInt(key)
}

func (p *Provider) GetStringSlice(key string) []string {
	return p.v.GetStringSlice(key)
}

func (p *Provider) UnmarshalKey(key string, rawVal interface{}) error {
	return viperutil.EnhancedExactUnmarshal(p.v, key, rawVal)
}

func (p *Provider) IsSet(key string) bool {
	return p.v.IsSet(key)
}

// GetPath returns the path stored under key, relative paths are resolved against the config file directory
func (p *Provider) GetPath(key string) string {
	return p.TranslatePath(p.v.GetString(key))
}

func (p *Provider) TranslatePath(path string) string {
	if path == "" {
		return ""
	}
	return TranslatePath(filepath.Dir(p.v.ConfigFileUsed()), path)
}

func (p *Provider) GetString(key string) string {
	return p.v.GetString(key)
}

func (p *Provider) ConfigFileUsed() string {
	return p.v.ConfigFileUsed()
}

func (p *Provider) load() error {
	p.v = viper.New()
	if err := p.initViper(p.v, CmdRoot); err != nil {
		return err
	}

	err := p.v.ReadInConfig() // Find and read the config file
	if err != nil {
		// The version of Viper we use claims the config type isn't supported when in fact the file hasn't been found
		// Display a more helpful message to avoid confusing the user.
		if strings.Contains(fmt.Sprint(err), "Unsupported Config Type") {
			return errors.Errorf("Could not find config file. "+
				"Please make sure that IOU_CFG_PATH is set to a path "+
				"which contains %s.yaml", CmdRoot)
		}
		return errors.WithMessagef(err, "error when reading %s config file", CmdRoot)
	}

	p.substituteEnv()

	logging.Init(logging.Config{
		Format:  p.v.GetString("logging.format"),
		Writer:  logOutput,
		LogSpec: p.v.GetString("logging.spec"),
	})

	return nil
}

// substituteEnv overrides keys when the respective environment variable is set, because viper
// doesn't do that for UnmarshalKey values.
// Example: CORE_LOGGING_FORMAT sets logging.format.
func (p *Provider) substituteEnv() {
	prefix := strings.ToUpper(CmdRoot) + "_"
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix) {
			continue
		}
		env := strings.SplitN(e, "=", 2)
		if len(env) != 2 || len(env[1]) == 0 {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(env[0], prefix), "_", "."))
		if len(p.v.GetStringMap(key)) > 0 {
			logging.MustGetLogger("fsc.config").Warnf("skipping %s: cannot override maps", env[0])
			continue
		}
		p.v.Set(key, env[1])
	}
}

func (p *Provider) initViper(v *viper.Viper, configName string) error {
	if len(p.confPath) != 0 {
		v.AddConfigPath(p.confPath)
	}

	if altPath := os.Getenv("IOU_CFG_PATH"); altPath != "" {
		// If the user has overridden the path with an envvar, its the only path we will consider
		if !dirExists(altPath) {
			return errors.Errorf("IOU_CFG_PATH %s does not exist", altPath)
		}
		v.AddConfigPath(altPath)
	} else {
		v.AddConfigPath("./")
	}

	v.SetConfigName(configName)
	return nil
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.IsDir()
}

func TranslatePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
