package l4grid

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"time"
)

// gridBlob is the gob payload of a map snapshot.
type gridBlob struct {
	Votes []VoteCell
	Class []CellClass
}

// serializeGrid compresses the grid using gob encoding and gzip compression.
func serializeGrid(g gridBlob) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(g); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeGrid decompresses and decodes a grid from a gob+gzip blob.
func deserializeGrid(blob []byte) (gridBlob, error) {
	if len(blob) == 0 {
		return gridBlob{}, fmt.Errorf("empty grid blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return gridBlob{}, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var g gridBlob
	if err := gob.NewDecoder(gz).Decode(&g); err != nil {
		return gridBlob{}, fmt.Errorf("failed to decode grid: %w", err)
	}
	return g, nil
}

// Snapshot is a persisted copy of the world map.
type Snapshot struct {
	SnapshotID        int64
	MissionID         string
	TakenUnixNanos    int64
	Size              int
	Cycles            int64
	Coverage          Coverage
	ChangedCellsCount int
	Reason            string
	GridBlob          []byte
}

// MapStore persists map snapshots. Implemented by sqlite.MissionStore.
type MapStore interface {
	InsertMapSnapshot(s *Snapshot) (int64, error)
}

// Snapshot copies the map under read lock and encodes it.
func (m *WorldMap) Snapshot(missionID, reason string) (*Snapshot, error) {
	m.mu.RLock()
	g := gridBlob{
		Votes: make([]VoteCell, len(m.votes)),
		Class: make([]CellClass, len(m.class)),
	}
	copy(g.Votes, m.votes)
	copy(g.Class, m.class)
	cycles := m.Cycles
	changes := m.ChangesSinceSnapshot
	m.mu.RUnlock()

	blob, err := serializeGrid(g)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		MissionID:         missionID,
		TakenUnixNanos:    time.Now().UnixNano(),
		Size:              m.cfg.Size,
		Cycles:            cycles,
		Coverage:          coverageOf(g.Class),
		ChangedCellsCount: changes,
		Reason:            reason,
		GridBlob:          blob,
	}, nil
}

// Persist writes a snapshot via the store and resets the change counter.
// Changes made while the snapshot was being written are kept.
func (m *WorldMap) Persist(store MapStore, missionID, reason string) error {
	if m == nil || store == nil {
		return nil
	}
	snap, err := m.Snapshot(missionID, reason)
	if err != nil {
		return err
	}
	id, err := store.InsertMapSnapshot(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if snap.Cycles > m.snapshotCycle {
		m.snapshotCycle = snap.Cycles
	}
	m.ChangesSinceSnapshot -= snap.ChangedCellsCount
	if m.ChangesSinceSnapshot < 0 {
		m.ChangesSinceSnapshot = 0
	}
	m.mu.Unlock()

	diagf("persisted snapshot id=%d mission=%s reason=%s cycles=%d coverage=%+v blob=%d bytes",
		id, missionID, reason, snap.Cycles, snap.Coverage, len(snap.GridBlob))
	return nil
}

// DueForSnapshot reports whether the cycle count sits on a snapshot
// boundary that has not been persisted yet. Cycles that do not accumulate
// leave the count unchanged and so never repeat a snapshot.
func (m *WorldMap) DueForSnapshot() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.SnapshotEvery > 0 && m.Cycles > 0 &&
		m.Cycles%int64(m.cfg.SnapshotEvery) == 0 && m.Cycles != m.snapshotCycle
}

// Restore replaces the map contents with a snapshot of the same size.
func (m *WorldMap) Restore(s *Snapshot) error {
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	if s.Size != m.cfg.Size {
		return fmt.Errorf("snapshot size %d does not match map size %d", s.Size, m.cfg.Size)
	}
	g, err := deserializeGrid(s.GridBlob)
	if err != nil {
		return err
	}
	n := m.cfg.Size * m.cfg.Size
	if len(g.Votes) != n || len(g.Class) != n {
		return fmt.Errorf("snapshot holds %d/%d cells, want %d", len(g.Votes), len(g.Class), n)
	}

	m.mu.Lock()
	m.votes = g.Votes
	m.class = g.Class
	m.Cycles = s.Cycles
	m.snapshotCycle = s.Cycles
	m.ChangesSinceSnapshot = 0
	m.mu.Unlock()
	opsf("restored snapshot mission=%s cycles=%d", s.MissionID, s.Cycles)
	return nil
}
