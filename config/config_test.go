package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `logging:
  level: "debug"
  format: "console"
store:
  driver: "s3"
  s3:
    bucket: "factories"
    region: "eu-west-3"
catalog:
  type: "sqlite"
  conf:
    path: "/var/lib/dspfactory/catalog.db"
cache:
  enabled: true
  size: 64
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "prometheus"
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  client_id: "cli"
  qos: 1
http:
  addr: ":9000"
  token: "secret"
write:
  binary: true
remote:
  url: "http://factories.local:8080"
  auth:
    token: "abc"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"logging.level", cfg.Logging.Level, "debug"},
		{"logging.format", cfg.Logging.Options().Format, "console"},
		{"store.driver", cfg.Store.Driver, "s3"},
		{"store.s3.bucket", cfg.Store.S3.Bucket, "factories"},
		{"catalog.type", cfg.Catalog.Type, "sqlite"},
		{"catalog.conf.path", cfg.Catalog.Conf["path"], "/var/lib/dspfactory/catalog.db"},
		{"cache.size", cfg.Cache.Size, 64},
		{"metrics.sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "prometheus", true},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.qos", cfg.MQTT.QoS, byte(1)},
		{"mqtt.topic_prefix", cfg.MQTT.TopicPrefix, "dspfactory"},
		{"http.addr", cfg.HTTP.Addr, ":9000"},
		{"http.max_upload_bytes", cfg.HTTP.MaxUploadBytes, int64(32 << 20)},
		{"write.binary", cfg.Write.Options().Binary, true},
		{"remote.url", cfg.Remote.URL, "http://factories.local:8080"},
		{"remote.auth.token", cfg.Remote.Auth.Token, "abc"},
		{"remote.timeout", cfg.Remote.TimeoutSeconds, 30},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"http":{"addr":":9000"}}`)
	t.Setenv("K_HTTP__ADDR", ":7000")
	t.Setenv("K_CACHE__SIZE", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Fatalf("env override ignored: %s", cfg.HTTP.Addr)
	}
	if cfg.Cache.Size != 8 {
		t.Fatalf("cache size: %d", cfg.Cache.Size)
	}
	// Untouched sections fall back to defaults.
	if cfg.Store.Driver != "fs" || cfg.Catalog.Type != "memory" {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Store, cfg.Catalog)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad.toml":    ``,
		"store.yaml":  "store:\n  driver: \"tape\"\n",
		"level.yaml":  "logging:\n  level: \"loud\"\n",
		"mqtt.yaml":   "mqtt:\n  enabled: true\n",
		"sink.yaml":   "metrics:\n  sinks:\n    - conf: {}\n",
		"remote.yaml": "remote:\n  url: \"nohost\"\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, name, data)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.HTTP.Addr != DefaultHTTPAddr {
		t.Fatalf("addr: %s", cfg.HTTP.Addr)
	}
}
