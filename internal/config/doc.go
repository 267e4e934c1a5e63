// Package config loads the service configuration with viper.
//
// Values come from built-in defaults, then an optional YAML file, then
// COLORCARE_* environment variables (dots become underscores, so
// outline.max_dimension is COLORCARE_OUTLINE_MAX_DIMENSION). Source.Watch
// hot-reloads the file.
package config
