// Command map-render draws a stored world map snapshot as a PNG.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sample.return/internal/db"
	"github.com/banshee-data/sample.return/internal/rover/l4grid"
	"github.com/banshee-data/sample.return/internal/rover/monitor"
	"github.com/banshee-data/sample.return/internal/rover/storage/sqlite"
	"github.com/banshee-data/sample.return/internal/security"
)

func main() {
	dbFile := flag.String("db", "rover.db", "Path to the SQLite mission database")
	snapshotID := flag.Int64("snapshot", 0, "Snapshot ID to render (0 = newest)")
	missionID := flag.String("mission", "", "Render the newest snapshot of this mission")
	output := flag.String("o", "", "Output path; the extension selects the format (default map-<mission>-<snapshot>.png)")
	size := flag.Float64("size", 8, "Image side in inches")
	outDir := flag.String("dir", ".", "Directory for the default output file")
	flag.Parse()

	database, err := db.OpenDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	store := sqlite.NewMissionStore(database.DB)

	snap, err := selectSnapshot(store, *snapshotID, *missionID)
	if err != nil {
		log.Fatal(err)
	}

	m := l4grid.NewWorldMap(l4grid.Config{Size: snap.Size})
	if err := m.Restore(snap); err != nil {
		log.Fatalf("failed to load snapshot %d: %v", snap.SnapshotID, err)
	}
	title := fmt.Sprintf("mission %s snapshot %d (%s, %d cycles)", snap.MissionID, snap.SnapshotID, snap.Reason, snap.Cycles)
	p, err := monitor.MapPlot(m, nil, nil, title)
	if err != nil {
		log.Fatal(err)
	}
	out := *output
	if out == "" {
		out = filepath.Join(*outDir, defaultOutput(snap))
		if err := security.ValidatePathWithinDirectory(out, *outDir); err != nil {
			log.Fatalf("refusing to write %s: %v", out, err)
		}
	}
	side := vg.Length(*size) * vg.Inch
	if err := p.Save(side, side, out); err != nil {
		log.Fatalf("failed to save %s: %v", out, err)
	}
	log.Printf("wrote %s: %+v", out, snap.Coverage)
}

// defaultOutput names the PNG after the snapshot, safe for any mission ID.
func defaultOutput(snap *l4grid.Snapshot) string {
	return fmt.Sprintf("map-%s-%d.png", security.SanitizeFilename(snap.MissionID), snap.SnapshotID)
}

func selectSnapshot(store *sqlite.MissionStore, id int64, missionID string) (*l4grid.Snapshot, error) {
	switch {
	case id > 0:
		return store.GetMapSnapshot(id)
	case missionID != "":
		list, err := store.ListMapSnapshots(missionID)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("mission %s has no snapshots", missionID)
		}
		return store.GetMapSnapshot(list[len(list)-1].SnapshotID)
	default:
		snap, err := store.LatestMapSnapshot()
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, fmt.Errorf("no snapshots stored in database")
		}
		return snap, nil
	}
}
