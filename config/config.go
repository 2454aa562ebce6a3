// Package config loads run profiles and OCI credentials.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sort"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DefaultOCIProfile is the section read from the OCI config file.
const DefaultOCIProfile = "DEFAULT"

// Profile holds flag defaults read from a YAML file. Keys are flag names,
// e.g.
//
//	size: 4GB
//	blocksize: 1MB
//	random-seek: true
type Profile map[string]any

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return p, nil
}

// Apply sets every flag named in p that was not given on the command line.
// Unknown keys and non-scalar values are errors.
func (p Profile) Apply(fs *pflag.FlagSet) error {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		f := fs.Lookup(k)
		if f == nil {
			return fmt.Errorf("profile: unknown key %q", k)
		}
		if f.Changed {
			continue
		}
		v := p[k]
		if !isScalar(v) {
			return fmt.Errorf("profile: key %q must be a scalar", k)
		}
		if err := fs.Set(k, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("profile: key %q: %w", k, err)
		}
	}
	return nil
}

// isScalar reports whether v can be given to a flag as a single value.
// Nested mappings decode as Profile, so the check goes by kind.
func isScalar(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		return false
	}
	return true
}

// LoadOCIConfig loads the OCI configuration from the specified config file path
func LoadOCIConfig(configFilePath string, logger *slog.Logger) (common.ConfigurationProvider, error) {
	logger.Debug("loading OCI config", "path", configFilePath, "profile", DefaultOCIProfile)
	provider, err := common.ConfigurationProviderFromFileWithProfile(configFilePath, DefaultOCIProfile, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}
	return provider, nil
}
