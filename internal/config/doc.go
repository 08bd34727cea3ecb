// Package config defines configuration for the httpcat CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (HTTPCAT_ prefix)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file.
// Byte sizes accept human readable values such as "64KB" or "1.5MB".
package config
