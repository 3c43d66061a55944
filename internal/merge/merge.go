// Package merge folds a set of parsed streams into one clock-corrected,
// ascending-time global timeline.
package merge

import (
	"log"
	"sort"

	"github.com/timeseam/timeseam/internal/model"
	"github.com/timeseam/timeseam/internal/timesync"
)

// Timeline is the merged view over a set of streams. It is derived,
// disposable data: source streams are never modified.
type Timeline struct {
	// Records holds every stream's records, time-corrected and sorted
	// ascending. Equal corrected times keep their per-stream insertion
	// order.
	Records []model.Record
	// Accuracy is carried over from offset estimation.
	Accuracy float64
	// TMin is the absolute session start: the minimum first-record time
	// across all streams. Corrected times are relative to it.
	TMin float64
	// Unsynced lists hosts merged without an offset, sorted.
	Unsynced []string
	// Unclosed lists streams with no terminal END record, sorted.
	Unclosed []string
}

// Combine applies per-host corrections to every record of every stream
// and merges the result. For a record at time t on a host with offset
// o, the corrected time is t - TMin - o; hosts without an offset (and
// streams without a usable descriptor) correct by zero. The output is
// independent of the iteration order of streams.
func Combine(streams map[string][]model.Record, sync timesync.Result) Timeline {
	tl := Timeline{Accuracy: sync.Accuracy}

	names := make([]string, 0, len(streams))
	for name := range streams {
		names = append(names, name)
	}
	sort.Strings(names)

	first := true
	for _, name := range names {
		records := streams[name]
		if len(records) == 0 {
			continue
		}
		if first || records[0].Time < tl.TMin {
			tl.TMin = records[0].Time
			first = false
		}
	}

	for _, name := range names {
		records := streams[name]
		if len(records) == 0 {
			continue
		}

		offset := 0.0
		if d, ok := timesync.ParseDescriptor(records[0].Msg); ok {
			if o, has := sync.Offsets[d.HostID()]; has {
				offset = o
			}
		}

		ends := 0
		for _, rec := range records {
			rec.Time = rec.Time - tl.TMin - offset
			if rec.Event == model.EventEnd {
				ends++
			}
			tl.Records = append(tl.Records, rec)
		}

		if ends == 0 {
			log.Printf("merge: stream %s not properly closed", name)
			tl.Unclosed = append(tl.Unclosed, name)
		}
	}

	sort.SliceStable(tl.Records, func(i, j int) bool {
		return tl.Records[i].Time < tl.Records[j].Time
	})

	for host := range sync.Unsynced {
		tl.Unsynced = append(tl.Unsynced, host)
	}
	sort.Strings(tl.Unsynced)

	return tl
}
