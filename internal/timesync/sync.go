// Package timesync estimates per-host clock-correction offsets from
// the sync descriptors recorded at the head of each stream.
package timesync

import (
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/timeseam/timeseam/internal/clock"
	"github.com/timeseam/timeseam/internal/model"
)

// DriftWarnLimit is the offset disagreement, in seconds, above which
// conflicting sync reports for one host are logged.
const DriftWarnLimit = 1.0

// Descriptor is a stream's parsed sync payload.
type Descriptor struct {
	Host  string
	IP    string
	Local float64
	Ref   float64
	Mode  string
}

// HostID keys offsets by host and address.
func (d Descriptor) HostID() string {
	return d.Host + ":" + d.IP
}

// Offset is the estimated difference between the host's local clock and
// the reference clock. Subtracting it from a local reading yields
// reference time.
func (d Descriptor) Offset() float64 {
	return d.Local - d.Ref
}

// ParseDescriptor parses a "host:ip:local:ref:mode" sync payload.
// ok is false when msg does not look like a descriptor; a stream with
// an unparsable descriptor is unsynced, not broken.
func ParseDescriptor(msg string) (Descriptor, bool) {
	parts := strings.Split(msg, ":")
	if len(parts) != 5 {
		return Descriptor{}, false
	}
	local, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Descriptor{}, false
	}
	ref, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return Descriptor{}, false
	}
	return Descriptor{
		Host:  parts[0],
		IP:    parts[1],
		Local: local,
		Ref:   ref,
		Mode:  parts[4],
	}, true
}

// Result is the outcome of offset estimation across a set of streams.
type Result struct {
	// Offsets maps host:ip to the correction subtracted from that
	// host's timestamps.
	Offsets map[string]float64
	// Accuracy is the maximum observed disagreement, in seconds,
	// between independent offset estimates for one host. Zero when all
	// estimates agree.
	Accuracy float64
	// Unsynced holds hosts that appeared in a descriptor but earned no
	// offset entry; their records are merged uncorrected.
	Unsynced map[string]bool
}

// Sync scans the first record of every stream and estimates one offset
// per host. Streams are visited in sorted name order, so the first-seen
// estimate for a host is deterministic; later disagreeing estimates
// only degrade Accuracy. Hosts reporting only mode "sys" end up in
// Unsynced.
func Sync(streams map[string][]model.Record) Result {
	res := Result{
		Offsets:  make(map[string]float64),
		Unsynced: make(map[string]bool),
	}
	seen := make(map[string]bool)

	names := make([]string, 0, len(streams))
	for name := range streams {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		records := streams[name]
		if len(records) == 0 {
			continue
		}
		d, ok := ParseDescriptor(records[0].Msg)
		if !ok {
			continue
		}
		host := d.HostID()
		seen[host] = true

		if d.Mode != clock.ModeNTP {
			continue
		}

		off := d.Offset()
		if kept, dup := res.Offsets[host]; dup {
			if off != kept {
				diff := math.Abs(off - kept)
				if diff > res.Accuracy {
					res.Accuracy = diff
				}
				if diff > DriftWarnLimit {
					log.Printf("timesync: conflicting sync for %s (%s): %.2f vs kept %.2f, diff %.2f",
						name, host, off, kept, diff)
				}
			}
			continue
		}
		res.Offsets[host] = off
	}

	for host := range seen {
		if _, ok := res.Offsets[host]; !ok {
			res.Unsynced[host] = true
		}
	}

	return res
}
