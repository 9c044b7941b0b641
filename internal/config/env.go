package config

import (
	"os"
	"strings"
)

// An EnvMap is a [Map] that reads from environment variables. Keys are mapped to environment
// variable names by replacing hyphens ('-') with underscores ('_'), replacing periods ('.') with
// two underscores ("__"), and transforming the key to UPPER-CASE.
type EnvMap struct{}

func (EnvMap) Lookup(key string) (string, bool) {
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, ".", "__")
	key = strings.ToUpper(key)
	return os.LookupEnv(key)
}

// FileEnvVar names the environment variable holding an optional YAML config file path.
const FileEnvVar = "CONFIG_FILE"

// Sources returns the configuration read by the binaries: environment variables, backed by the
// YAML file named by CONFIG_FILE when it is set.
func Sources() (Map, error) {
	path, ok := os.LookupEnv(FileEnvVar)
	if !ok || path == "" {
		return EnvMap{}, nil
	}
	file, err := LoadYAML(path)
	if err != nil {
		return nil, err
	}
	return Layered{EnvMap{}, file}, nil
}
