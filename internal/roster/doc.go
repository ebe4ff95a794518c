// Package roster owns the duty roster: entry model and validation, the
// topic gate, the recipient directory, admin operations (ingest, delete,
// month view) and the twice-daily reminder dispatch pass.
//
// All mutating operations follow the same discipline: take the service
// mutex, load the whole collection from the store, mutate in memory, save
// the whole collection back once.
package roster
