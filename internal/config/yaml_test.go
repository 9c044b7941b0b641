package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
http:
  listen-port: "8080"
kafka:
  consumer:
    bootstrap-servers: localhost:9092
    group-id: journal
journal:
  capacity: 250
  compress: true
  ratio: 0.75
  poll: 50ms
empty:
`

func TestYAMLMap(t *testing.T) {

	t.Run("flattens nested keys", func(t *testing.T) {
		m, err := ParseYAML([]byte(sampleYAML))
		require.NoError(t, err)

		expected := map[string]string{
			"http.listen-port":                 "8080",
			"kafka.consumer.bootstrap-servers": "localhost:9092",
			"kafka.consumer.group-id":          "journal",
			"journal.capacity":                 "250",
			"journal.compress":                 "true",
			"journal.ratio":                    "0.75",
			"journal.poll":                     "50ms",
			"empty":                            "",
		}
		for key, value := range expected {
			t.Run(key, func(t *testing.T) {
				actual, ok := m.Lookup(key)
				assert.True(t, ok)
				assert.Equal(t, value, actual)
			})
		}
	})

	t.Run("feeds Parse", func(t *testing.T) {
		type target struct {
			Port     string        `config_key:"http.listen-port"`
			GroupID  string        `config_key:"kafka.consumer.group-id"`
			Capacity int           `config_key:"journal.capacity"`
			Compress bool          `config_key:"journal.compress"`
			Poll     time.Duration `config_key:"journal.poll"`
		}
		m, err := ParseYAML([]byte(sampleYAML))
		require.NoError(t, err)

		actual, err := Parse[target](m)
		require.NoError(t, err)
		assert.Equal(t, target{
			Port:     "8080",
			GroupID:  "journal",
			Capacity: 250,
			Compress: true,
			Poll:     50 * time.Millisecond,
		}, actual)
	})

	t.Run("rejects sequences", func(t *testing.T) {
		_, err := ParseYAML([]byte("topics:\n  - a\n  - b\n"))
		assert.Error(t, err)
	})

	t.Run("rejects malformed documents", func(t *testing.T) {
		_, err := ParseYAML([]byte("a: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("loads from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

		m, err := LoadYAML(path)
		require.NoError(t, err)
		v, ok := m.Lookup("journal.capacity")
		assert.True(t, ok)
		assert.Equal(t, "250", v)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestSources(t *testing.T) {

	t.Run("environment only", func(t *testing.T) {
		t.Setenv(FileEnvVar, "")
		m, err := Sources()
		require.NoError(t, err)
		assert.Equal(t, EnvMap{}, m)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
		t.Setenv(FileEnvVar, path)
		t.Setenv("KAFKA__CONSUMER__GROUP_ID", "override")

		m, err := Sources()
		require.NoError(t, err)

		v, _ := m.Lookup("kafka.consumer.group-id")
		assert.Equal(t, "override", v)
		v, _ = m.Lookup("journal.capacity")
		assert.Equal(t, "250", v)
	})

	t.Run("unreadable file", func(t *testing.T) {
		t.Setenv(FileEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := Sources()
		assert.Error(t, err)
	})
}
