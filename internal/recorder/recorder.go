// Package recorder appends structured profile events to one named
// stream file. Appends are serialized and best-effort: write failures
// surface on a side error channel, never to the recording caller.
package recorder

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/timeseam/timeseam/internal/clock"
	"github.com/timeseam/timeseam/internal/model"
)

// ErrClosed is reported on the error channel for records that arrive
// after Close.
var ErrClosed = errors.New("recorder: stream closed")

// errBuffer bounds the side error channel; further errors are dropped.
const errBuffer = 64

// Recorder owns one append-only stream. A disabled Recorder is a no-op
// for every operation and performs no clock query, no directory
// creation and no file open at construction.
type Recorder struct {
	name    string
	enabled bool
	errs    chan error

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// New opens the stream file <dir>/<name>.prof and writes the header
// and sync descriptor rows. The reference clock is queried through src
// with a bounded timeout; on failure the local clock serves as its own
// reference and the stream is marked mode "sys".
func New(name, dir string, enabled bool, src clock.Source) (*Recorder, error) {
	r := &Recorder{
		name:    name,
		enabled: enabled,
		errs:    make(chan error, errBuffer),
	}
	if !enabled {
		return r, nil
	}

	sp := clock.Establish(src, clock.DefaultTimeout)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, name+".prof"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintf(f, "#%s\n", strings.Join(model.Fields, ",")); err != nil {
		f.Close()
		return nil, err
	}
	desc := fmt.Sprintf("%s:%s:%.4f:%.4f:%s",
		clock.Hostname(), clock.HostIP(), sp.Local, sp.Ref, sp.Mode)
	if _, err := fmt.Fprintf(f, "%.4f,%s,%s,,,%s\n",
		clock.Timestamp(), model.EventSync, name, desc); err != nil {
		f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// Name returns the stream name.
func (r *Recorder) Name() string {
	return r.name
}

// Enabled reports whether the recorder writes anything at all.
func (r *Recorder) Enabled() bool {
	return r.enabled
}

// Errors exposes the side channel carrying append failures. The channel
// is never closed; reads should be non-blocking or select-based.
func (r *Recorder) Errors() <-chan error {
	return r.errs
}

// Record appends one row with the current timestamp and the recorder
// name as component.
func (r *Recorder) Record(event, uid, state, msg string) {
	r.RecordAt(clock.Timestamp(), event, "", uid, state, msg)
}

// RecordAt appends one row at an explicit timestamp. An empty comp
// defaults to the recorder name.
func (r *Recorder) RecordAt(ts float64, event, comp, uid, state, msg string) {
	if !r.enabled {
		return
	}
	if comp == "" {
		comp = r.name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(ts, event, comp, uid, state, msg)
}

// RecordAll appends one row per uid, all sharing one event and one
// timestamp, in the given order. The expansion is not atomic as a
// batch: concurrent writers may interleave between rows, but each row
// is appended whole.
func (r *Recorder) RecordAll(event string, uids []string, state, msg string) {
	if !r.enabled {
		return
	}
	ts := clock.Timestamp()
	for _, uid := range uids {
		r.RecordAt(ts, event, "", uid, state, msg)
	}
}

// Flush writes a flush marker row and syncs the file to disk.
func (r *Recorder) Flush() error {
	if !r.enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.appendLocked(clock.Timestamp(), model.EventFlush, r.name, "", "", "")
	return r.file.Sync()
}

// Close seals the stream: it appends the terminal END row, syncs and
// releases the file handle. Records arriving afterwards are dropped and
// reported on the error channel. Close is idempotent.
func (r *Recorder) Close() error {
	if !r.enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}

	r.appendLocked(clock.Timestamp(), model.EventEnd, r.name, "", "", "")
	err := r.file.Sync()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.closed = true
	return err
}

// appendLocked writes one fully-formed row. Callers must hold mu.
func (r *Recorder) appendLocked(ts float64, event, comp, uid, state, msg string) {
	if r.closed {
		r.report(ErrClosed)
		return
	}
	if _, err := fmt.Fprintf(r.file, "%.4f,%s,%s,%s,%s,%s\n",
		ts, event, comp, uid, state, msg); err != nil {
		r.report(fmt.Errorf("recorder %s: %w", r.name, err))
	}
}

// report delivers an error without ever blocking an append.
func (r *Recorder) report(err error) {
	select {
	case r.errs <- err:
	default:
		log.Printf("recorder %s: error channel full, dropping: %v", r.name, err)
	}
}
