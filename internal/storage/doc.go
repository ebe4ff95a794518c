package storage

// Package storage persists named JSON records with whole-document
// load/replace semantics.
//
// It currently supports:
//   - "file": one JSON document per record under a directory
//   - "sqlite": a single-table SQLite database
