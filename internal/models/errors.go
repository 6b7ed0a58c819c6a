package models

import "fmt"

// ConnectionError covers pool or index-client setup failure. Retried with
// backoff at startup; fatal to the calling cycle afterwards.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError covers a missing table or a bad catalog response. Aborts only
// the affected table's cycle.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error for table %s: %v", e.Table, e.Err)
}
func (e *SchemaError) Unwrap() error { return e.Err }

// BatchWriteError means the bulk call itself failed, as opposed to partial
// per-document rejection. The watermark is not advanced past the last
// successful batch.
type BatchWriteError struct {
	Err error
}

func (e *BatchWriteError) Error() string { return fmt.Sprintf("batch write error: %v", e.Err) }
func (e *BatchWriteError) Unwrap() error { return e.Err }
