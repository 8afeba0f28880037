// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase can log through a stable, minimal
// API (Logger + Field helpers) while the Service swaps sinks and levels at
// runtime when the settings file changes. The zero Logger value is a no-op,
// which keeps constructors free of nil checks.
package logx
