package config

import (
	"net/url"

	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// Redacted returns a copy with keys, passwords and DSN credentials masked.
func (c AppConfig) Redacted() AppConfig {
	out := c
	if out.JWT.AccessKey != "" {
		out.JWT.AccessKey = redacted
	}
	if out.JWT.ResetKey != "" {
		out.JWT.ResetKey = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	if out.Postgres.DSN != "" {
		if u, err := url.Parse(out.Postgres.DSN); err == nil && u.Scheme != "" {
			out.Postgres.DSN = u.Redacted()
		} else {
			out.Postgres.DSN = redacted
		}
	}
	out.Kafka.Brokers = append([]string(nil), c.Kafka.Brokers...)
	out.HTTP.TrustedProxies = append([]string(nil), c.HTTP.TrustedProxies...)
	return out
}

// DumpYAML renders the redacted effective configuration.
func (c AppConfig) DumpYAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
