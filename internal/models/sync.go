package models

import "time"

// SchemaMap holds the current column name/type pairs of a source table, in
// declaration order. Read-only after introspection.
type SchemaMap struct {
	Columns []ColumnDef
}

type ColumnDef struct {
	Name     string
	DataType string
}

// FieldType describes one index field, including the optional keyword
// sub-field attached to analyzed text fields.
type FieldType struct {
	Type        string               `json:"type"`
	Fields      map[string]FieldType `json:"fields,omitempty"`
	IgnoreAbove int                  `json:"ignore_above,omitempty"`
}

// FieldMapping is the index-side mapping derived from a SchemaMap.
type FieldMapping struct {
	Properties map[string]FieldType `json:"properties"`
}

// Watermark records, per table, the timestamp boundary below which all rows
// are known synced. Monotonically non-decreasing across successful cycles.
type Watermark struct {
	TableName    string    `json:"table_name" db:"table_name"`
	LastSyncTime time.Time `json:"last_sync_time" db:"last_sync_time"`
}

// BulkAction is one upsert destined for the index, keyed by the stringified
// primary key so repeated delivery overwrites identical documents.
type BulkAction struct {
	Index      string
	DocumentID string
	Document   Row
}

// FailedItem reports one document the index rejected inside an otherwise
// successful bulk call.
type FailedItem struct {
	DocumentID string
	Status     int
	Reason     string
}

// BatchResult summarizes a bulk write. Failures are per-document and never
// abort the batch.
type BatchResult struct {
	Succeeded int
	Failed    []FailedItem
}
