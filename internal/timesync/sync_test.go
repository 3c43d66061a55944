package timesync

import (
	"testing"

	"github.com/timeseam/timeseam/internal/model"
)

// stream builds a minimal stream whose first record carries msg as its
// sync payload.
func stream(msg string, times ...float64) []model.Record {
	records := []model.Record{{Time: 10.0, Event: model.EventSync, Msg: msg}}
	if len(times) > 0 {
		records[0].Time = times[0]
		for _, ts := range times[1:] {
			records = append(records, model.Record{Time: ts, Event: "ev"})
		}
	}
	return records
}

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		msg string
		ok  bool
	}{
		{"nodeA:10.0.0.1:100.5:98.5:ntp", true},
		{"nodeA:10.0.0.1:100.5:100.5:sys", true},
		{"nodeA:10.0.0.1:100.5:98.5", false},
		{"nodeA:10.0.0.1:abc:98.5:ntp", false},
		{"nodeA:10.0.0.1:100.5:xyz:ntp", false},
		{"no delimiters at all", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			d, ok := ParseDescriptor(tt.msg)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if d.Host != "nodeA" || d.IP != "10.0.0.1" {
				t.Errorf("host %q ip %q", d.Host, d.IP)
			}
			if d.HostID() != "nodeA:10.0.0.1" {
				t.Errorf("host id %q", d.HostID())
			}
		})
	}
}

func TestOffset(t *testing.T) {
	d, ok := ParseDescriptor("nodeA:10.0.0.1:102.0:100.0:ntp")
	if !ok {
		t.Fatal("descriptor unparsable")
	}
	if d.Offset() != 2.0 {
		t.Errorf("offset %v, want local - ref = 2.0", d.Offset())
	}
}

func TestSyncAgreement(t *testing.T) {
	streams := map[string][]model.Record{
		"a": stream("nodeA:10.0.0.1:102.0:100.0:ntp"),
		"b": stream("nodeA:10.0.0.1:102.0:100.0:ntp"),
	}

	res := Sync(streams)
	if res.Accuracy != 0.0 {
		t.Errorf("accuracy %v, want 0.0 for identical estimates", res.Accuracy)
	}
	if off := res.Offsets["nodeA:10.0.0.1"]; off != 2.0 {
		t.Errorf("offset %v, want 2.0", off)
	}
	if len(res.Unsynced) != 0 {
		t.Errorf("unsynced %v, want none", res.Unsynced)
	}
}

func TestSyncFirstSeenWins(t *testing.T) {
	streams := map[string][]model.Record{
		"b": stream("nodeA:10.0.0.1:102.5:100.0:ntp"),
		"a": stream("nodeA:10.0.0.1:102.0:100.0:ntp"),
	}

	res := Sync(streams)

	// streams are visited in name order, so a's estimate is kept
	if off := res.Offsets["nodeA:10.0.0.1"]; off != 2.0 {
		t.Errorf("kept offset %v, want 2.0 from stream a", off)
	}
	if res.Accuracy != 0.5 {
		t.Errorf("accuracy %v, want 0.5", res.Accuracy)
	}
}

func TestSyncAccuracyIsAbsolute(t *testing.T) {
	// the later estimate is smaller than the kept one; the disagreement
	// still counts
	streams := map[string][]model.Record{
		"a": stream("nodeA:10.0.0.1:102.0:100.0:ntp"),
		"b": stream("nodeA:10.0.0.1:101.2:100.0:ntp"),
	}

	res := Sync(streams)
	if res.Accuracy < 0.79 || res.Accuracy > 0.81 {
		t.Errorf("accuracy %v, want |1.2 - 2.0| = 0.8", res.Accuracy)
	}
}

func TestSyncSysModeUnsynced(t *testing.T) {
	streams := map[string][]model.Record{
		"c": stream("nodeC:10.0.0.3:100.0:100.0:sys"),
	}

	res := Sync(streams)
	if len(res.Offsets) != 0 {
		t.Errorf("offsets %v, want none for sys mode", res.Offsets)
	}
	if !res.Unsynced["nodeC:10.0.0.3"] {
		t.Errorf("nodeC not reported unsynced: %v", res.Unsynced)
	}
}

func TestSyncMixedModes(t *testing.T) {
	// one host reports sys in one stream and ntp in another: the ntp
	// estimate makes the host synced
	streams := map[string][]model.Record{
		"a": stream("nodeA:10.0.0.1:100.0:100.0:sys"),
		"b": stream("nodeA:10.0.0.1:103.0:100.0:ntp"),
	}

	res := Sync(streams)
	if off, ok := res.Offsets["nodeA:10.0.0.1"]; !ok || off != 3.0 {
		t.Errorf("offset %v (ok=%v), want 3.0", off, ok)
	}
	if len(res.Unsynced) != 0 {
		t.Errorf("unsynced %v, want none", res.Unsynced)
	}
}

func TestSyncGarbledDescriptor(t *testing.T) {
	streams := map[string][]model.Record{
		"a": stream("this is not a descriptor"),
		"b": {},
	}

	res := Sync(streams)
	if len(res.Offsets) != 0 || len(res.Unsynced) != 0 {
		t.Errorf("garbled descriptor produced %v / %v, want nothing", res.Offsets, res.Unsynced)
	}
}
