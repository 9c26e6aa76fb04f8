// Package security provides input validation and resource limits.
//
// Type names, method names and queue names end up inside reference strings
// and database columns, so they are restricted to a small character set
// that never contains the ':' delimiter. Error messages are sanitized before
// they are persisted.
package security
