package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// A YAMLMap is a [Map] loaded from a YAML document. Nested mappings are flattened into dotted
// keys, so
//
//	kafka:
//	  consumer:
//	    group-id: journal
//
// is available as "kafka.consumer.group-id". Sequences are not supported.
type YAMLMap StdMap

// LoadYAML reads and flattens the YAML file at path.
func LoadYAML(path string) (YAMLMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML flattens a YAML document into a [YAMLMap].
func ParseYAML(data []byte) (YAMLMap, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	m := YAMLMap{}
	if err := m.flatten("", doc); err != nil {
		return nil, err
	}
	return m, nil
}

func (m YAMLMap) Lookup(key string) (string, bool) {
	return StdMap(m).Lookup(key)
}

func (m YAMLMap) flatten(prefix string, node map[string]any) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := v.(type) {
		case map[string]any:
			if err := m.flatten(key, v); err != nil {
				return err
			}
		case nil:
			m[key] = ""
		case string:
			m[key] = v
		case bool:
			m[key] = strconv.FormatBool(v)
		case int:
			m[key] = strconv.Itoa(v)
		case uint64:
			m[key] = strconv.FormatUint(v, 10)
		case float64:
			m[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Errorf("unsupported value for %q: %T", key, v)
		}
	}
	return nil
}
