package config

import "context"

// SecretProvider resolves secret parameter paths to plaintext values. It is
// backed by SSM Parameter Store in deployed environments and by the process
// environment locally.
type SecretProvider interface {
	// GetParametersBatch returns a map of key -> value for every key it could
	// resolve. Implementations batch internally to respect API limits.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
