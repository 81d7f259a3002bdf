// Package stores persists configuration documents.
//
// FileStore keeps a single YAML file on disk, written atomically, and can
// watch it for modifications made outside the editor. SQLiteStore keeps an
// append-only revision history in SQLite with WAL mode and embedded
// golang-migrate migrations; Load returns the newest revision.
//
// Both create the default configuration the first time they are loaded.
package stores
