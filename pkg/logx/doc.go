// Package logx is a small structured logging facade over zerolog.
//
// Components receive a Logger value; the zero value is a safe no-op.
// The Service owns the sinks (console, file) and can be re-applied at
// runtime when the config file changes.
package logx
