// Package config loads the server configuration from the `server:` section of
// config.yaml.
//
// Load(path) applies defaults before unmarshalling, then validates. Secrets
// (JWT signing key, database DSN, Redis password, webhook URLs) are never
// stored in the file: each is named by an *_env field and resolved from the
// environment through an accessor.
//
// Watch re-reads the file when it changes. Only the log level and the alert
// rules are applied live; everything else needs a restart.
package config
