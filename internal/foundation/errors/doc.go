// Package errors provides foundational, type-safe error primitives used across assetpipe.
//
// Errors raised by the pipeline are classified so the CLI can choose an exit
// code and the dev server can keep running after a failed stage.
//
// Key features:
//   - ErrorCategory: Broad error classification (config, transform, filesystem, server, ...)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryTransform, "style compilation failed").
//		WithContext("category", "styles").
//		WithContext("file", "scss/main.scss").
//		Build()
package errors
