package models

import "strconv"

const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

// ChangeEvent is the NATS payload describing a row change in a project
// database. ID is textual: menu rows have numeric ids, reviews uuids.
type ChangeEvent struct {
	Table    string     `json:"table"`
	Kind     string     `json:"kind"`
	ID       FlexString `json:"id"`
	Database string     `json:"database"`
}

// NumericID parses the id of a table keyed by a serial column.
func (e ChangeEvent) NumericID() (uint64, error) {
	return strconv.ParseUint(string(e.ID), 10, 64)
}
