// Package export writes merged timelines to downstream sinks.
package export

import (
	"encoding/json"
	"os"
	"time"

	"github.com/timeseam/timeseam/internal/merge"
	"github.com/timeseam/timeseam/internal/model"
)

// Document is the JSON shape of an exported timeline.
type Document struct {
	Generated string         `json:"generated"`
	Accuracy  float64        `json:"accuracy"`
	TMin      float64        `json:"t_min"`
	Unsynced  []string       `json:"unsynced,omitempty"`
	Unclosed  []string       `json:"unclosed,omitempty"`
	Records   []model.Record `json:"records"`
}

// WriteJSON writes the timeline to path as one JSON document.
func WriteJSON(path string, tl merge.Timeline) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	doc := Document{
		Generated: time.Now().UTC().Format(time.RFC3339),
		Accuracy:  tl.Accuracy,
		TMin:      tl.TMin,
		Unsynced:  tl.Unsynced,
		Unclosed:  tl.Unclosed,
		Records:   tl.Records,
	}
	if err := json.NewEncoder(f).Encode(doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
