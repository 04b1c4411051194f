// Package errors provides classified error handling for bazelide.
//
// Errors carry a category (what subsystem failed), a severity (how bad it
// is for the current command) and a retry strategy (whether the watch loop
// may reasonably try again later). Construction goes through ErrorBuilder
// so call sites stay uniform:
//
//	return ferrors.ConfigError("no compile_commands generator found").
//		WithContext("workspace", root).
//		Build()
package errors
