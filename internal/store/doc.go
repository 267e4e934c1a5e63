// Package store persists gallery images and finalized care sessions.
//
// Rows live in SQLite or Postgres through GORM. Image bytes live in a
// gocloud blob bucket (a local directory by default) under the gallery/,
// templates/ and processed-templates/ prefixes.
package store
