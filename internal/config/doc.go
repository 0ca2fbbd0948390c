// Package config loads and validates service configuration from the
// environment, resolving secrets through env-then-file fallback chains.
package config
