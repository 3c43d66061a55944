package main

import (
	"flag"
	"log"
	"sort"
	"strings"

	"github.com/timeseam/timeseam/internal/config"
	"github.com/timeseam/timeseam/internal/export"
	"github.com/timeseam/timeseam/internal/ids"
	"github.com/timeseam/timeseam/internal/merge"
	"github.com/timeseam/timeseam/internal/reader"
	"github.com/timeseam/timeseam/internal/storage"
	"github.com/timeseam/timeseam/internal/timesync"
)

func main() {
	// Command-line flags
	dataDir := flag.String("data", ".", "Directory containing .prof streams")
	sid := flag.String("sid", "", "Session id for records without a uid (minted when empty)")
	filterPath := flag.String("filter", "", "JSON exclusion filter file")
	outPath := flag.String("out", "", "Write the merged timeline as JSON")
	dbPath := flag.String("db", "", "Write the merged timeline into an SQLite database")
	archive := flag.Bool("archive", false, "Compress source streams after a successful merge")
	flag.Parse()

	if *sid == "" {
		registry := ids.NewRegistry()
		minted, err := registry.Generate("session", ids.Unique)
		if err != nil {
			log.Fatalf("Failed to mint session id: %v", err)
		}
		*sid = minted
		log.Printf("Session id: %s", *sid)
	}

	arch, err := storage.NewArchiver()
	if err != nil {
		log.Fatalf("Failed to create archiver: %v", err)
	}

	// 1. Discover streams
	paths, err := storage.Discover(*dataDir)
	if err != nil {
		log.Fatalf("Failed to list %s: %v", *dataDir, err)
	}
	if len(paths) == 0 {
		log.Fatalf("No streams found under %s", *dataDir)
	}
	log.Printf("Found %d streams under %s", len(paths), *dataDir)

	var filter reader.Filter
	if *filterPath != "" {
		filter, err = config.LoadFilter(*filterPath)
		if err != nil {
			log.Fatalf("Failed to load filter: %v", err)
		}
	}

	// 2. Parse streams; a broken stream only disqualifies itself
	streams, failed := reader.ReadAll(paths, *sid, filter, arch.Open)
	for _, name := range sortedKeys(failed) {
		log.Printf("Skipping stream %s: %v", name, failed[name])
	}
	if len(streams) == 0 {
		log.Fatalf("No readable streams under %s", *dataDir)
	}

	// 3. Estimate offsets and merge
	syncRes := timesync.Sync(streams)
	tl := merge.Combine(streams, syncRes)

	total := 0
	for _, records := range streams {
		total += len(records)
	}
	log.Printf("Merged %d of %d records from %d streams (accuracy %.4fs)",
		len(tl.Records), total, len(streams), tl.Accuracy)
	if len(tl.Unsynced) > 0 {
		log.Printf("Unsynced hosts (zero correction): %s", strings.Join(tl.Unsynced, ", "))
	}
	if len(tl.Unclosed) > 0 {
		log.Printf("Unclosed streams: %s", strings.Join(tl.Unclosed, ", "))
	}

	// 4. Export
	if *outPath != "" {
		if err := export.WriteJSON(*outPath, tl); err != nil {
			log.Fatalf("JSON export failed: %v", err)
		}
		log.Printf("Timeline written to %s", *outPath)
	}
	if *dbPath != "" {
		if err := export.WriteSQLite(*dbPath, tl); err != nil {
			log.Fatalf("SQLite export failed: %v", err)
		}
		log.Printf("Timeline written to %s", *dbPath)
	}

	// 5. Optionally archive the sources we just merged
	if *archive {
		for _, path := range paths {
			if strings.HasSuffix(path, ".zst") {
				continue
			}
			out, err := arch.Archive(path)
			if err != nil {
				log.Printf("Archive of %s failed: %v", path, err)
				continue
			}
			log.Printf("Archived %s", out)
		}
	}
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
