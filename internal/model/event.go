package model

import "strconv"

// Record represents one structured profile event.
// This is the logical view of a stream row, used during parsing,
// clock correction and merging. Entity is derived by the reader and
// never written by a recorder.
type Record struct {
	Time   float64 `json:"time"`
	Event  string  `json:"event"`
	Comp   string  `json:"comp"`
	UID    string  `json:"uid"`
	State  string  `json:"state"`
	Msg    string  `json:"msg"`
	Entity string  `json:"entity,omitempty"`
}

// Fields lists the stream columns in row order.
var Fields = []string{"time", "event", "comp", "uid", "state", "msg"}

// NumFields is the fixed column count of a stream row.
const NumFields = 6

// Reserved event names.
const (
	EventSync  = "sync_abs" // first row of a stream, carries the sync descriptor
	EventEnd   = "END"      // terminal row of a sealed stream
	EventFlush = "flush"    // written when a recorder flushes to disk
)

// CanonicalField resolves a field name (including the long aliases
// "component" and "message") to its column name. ok is false for names
// that are neither columns nor the derived "entity" field.
func CanonicalField(name string) (string, bool) {
	switch name {
	case "time", "event", "comp", "uid", "state", "msg", "entity":
		return name, true
	case "component":
		return "comp", true
	case "message":
		return "msg", true
	}
	return "", false
}

// FieldValue returns the record's value for a canonical field name as
// a string. Time is rendered with the same precision a recorder writes.
func (r Record) FieldValue(field string) (string, bool) {
	switch field {
	case "time":
		return strconv.FormatFloat(r.Time, 'f', 4, 64), true
	case "event":
		return r.Event, true
	case "comp":
		return r.Comp, true
	case "uid":
		return r.UID, true
	case "state":
		return r.State, true
	case "msg":
		return r.Msg, true
	case "entity":
		return r.Entity, true
	}
	return "", false
}
