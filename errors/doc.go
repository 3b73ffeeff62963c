// Package errors provides the structured error type shared by boundguard
// components and the status server. Framework primitives return plain
// sentinel errors; AppError is how they are presented to callers outside
// the process, with a code, an HTTP status and a retryable hint.
package errors
