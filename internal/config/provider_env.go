package config

import (
	"context"
	"os"
	"strings"
)

// EnvVarProvider implements SecretProvider on the process environment. A
// parameter path such as "/weatherforecast/prod/forecast-seed" is looked up
// as WEATHERFORECAST_PROD_FORECAST_SEED, which lets containers without SSM
// access inject the same _SSM_PARAM layout through plain variables.
type EnvVarProvider struct {
	lookupEnv func(string) (string, bool)
}

// NewEnvVarProvider creates an EnvVarProvider reading os.LookupEnv.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{lookupEnv: os.LookupEnv}
}

// GetParametersBatch implements SecretProvider. Paths with no matching
// variable are omitted, which the loader reports as unresolved.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := p.lookupEnv(envNameForPath(key)); ok {
			result[key] = val
		}
	}
	return result, nil
}

var envNameReplacer = strings.NewReplacer("/", "_", "-", "_", ".", "_")

// envNameForPath converts an SSM parameter path into a variable name.
func envNameForPath(path string) string {
	return strings.ToUpper(envNameReplacer.Replace(strings.TrimPrefix(path, "/")))
}
