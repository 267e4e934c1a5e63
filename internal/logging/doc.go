// Package logging builds the zap logger used across the service and a GORM
// logger that writes through it.
package logging
