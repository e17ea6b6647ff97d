package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sample.return/internal/rover/l1geom"
	"github.com/banshee-data/sample.return/internal/rover/l4grid"
	"github.com/banshee-data/sample.return/internal/rover/l5decision"
	"github.com/banshee-data/sample.return/internal/rover/pipeline"
)

// ErrNotFound is returned when a mission or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Mission is one run of the rover from start-up to shutdown.
type Mission struct {
	MissionID        string `json:"mission_id"`
	StartedUnixNanos int64  `json:"started_unix_nanos"`
	EndedUnixNanos   *int64 `json:"ended_unix_nanos,omitempty"`
	Source           string `json:"source"` // serial device path, replay file, or "dry-run"
	WorldSize        int    `json:"world_size"`
	TuningJSON       string `json:"tuning_json"`
	FinalMode        string `json:"final_mode,omitempty"`
	Cycles           int64  `json:"cycles"`
}

// DecisionRecord is a stored row of the decision log.
type DecisionRecord struct {
	DecisionID       int64              `json:"decision_id"`
	MissionID        string             `json:"mission_id"`
	TotalTime        float64            `json:"total_time_s"`
	Pose             l1geom.Pose        `json:"pose"`
	Vel              float64            `json:"vel"`
	Command          l5decision.Command `json:"command"`
	NavCount         int                `json:"nav_count"`
	RockCount        int                `json:"rock_count"`
	WallOnLeft       bool               `json:"wall_on_left"`
	TransitionFrom   string             `json:"transition_from,omitempty"`
	TransitionReason string             `json:"transition_reason,omitempty"`
}

// MissionStore implements pipeline.CycleRecorder and l4grid.MapStore on
// the mission database.
type MissionStore struct {
	db *sql.DB
}

// NewMissionStore creates a store over an already migrated database.
func NewMissionStore(db *sql.DB) *MissionStore {
	return &MissionStore{db: db}
}

// StartMission inserts a new mission. An empty MissionID is replaced by a
// fresh UUID and a zero start time by the current time.
func (s *MissionStore) StartMission(m *Mission) error {
	if m.MissionID == "" {
		m.MissionID = uuid.New().String()
	}
	if m.StartedUnixNanos == 0 {
		m.StartedUnixNanos = time.Now().UnixNano()
	}
	if m.TuningJSON == "" {
		m.TuningJSON = "{}"
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO rover_missions (mission_id, started_unix_nanos, source, world_size, tuning_json)
			VALUES (?, ?, ?, ?, ?)`,
			m.MissionID, m.StartedUnixNanos, m.Source, m.WorldSize, m.TuningJSON)
		if err != nil {
			return fmt.Errorf("insert mission: %w", err)
		}
		return nil
	})
}

// EndMission records the end time, final mode and cycle count.
func (s *MissionStore) EndMission(missionID string, finalMode l5decision.Mode, cycles int64) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE rover_missions
			SET ended_unix_nanos = ?, final_mode = ?, cycles = ?
			WHERE mission_id = ?`,
			time.Now().UnixNano(), finalMode.String(), cycles, missionID)
		if err != nil {
			return fmt.Errorf("end mission: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("mission %s: %w", missionID, ErrNotFound)
		}
		return nil
	})
}

const missionColumns = `mission_id, started_unix_nanos, ended_unix_nanos, source, world_size, tuning_json, final_mode, cycles`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(r rowScanner) (*Mission, error) {
	var m Mission
	var ended sql.NullInt64
	var final sql.NullString
	if err := r.Scan(&m.MissionID, &m.StartedUnixNanos, &ended, &m.Source, &m.WorldSize, &m.TuningJSON, &final, &m.Cycles); err != nil {
		return nil, err
	}
	if ended.Valid {
		m.EndedUnixNanos = &ended.Int64
	}
	m.FinalMode = final.String
	return &m, nil
}

// GetMission returns one mission by ID.
func (s *MissionStore) GetMission(missionID string) (*Mission, error) {
	row := s.db.QueryRow(`SELECT `+missionColumns+` FROM rover_missions WHERE mission_id = ?`, missionID)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mission %s: %w", missionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	return m, nil
}

// ListMissions returns up to limit missions, newest first. A limit of 0
// or less returns all of them.
func (s *MissionStore) ListMissions(limit int) ([]*Mission, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+missionColumns+` FROM rover_missions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query missions: %w", err)
	}
	defer rows.Close()

	var out []*Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordDecision appends one cycle to the decision log.
func (s *MissionStore) RecordDecision(d *pipeline.Decision) error {
	var from, reason any
	if d.Transition != nil {
		from = d.Transition.From.String()
		reason = d.Transition.Reason
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO rover_decisions (
				mission_id, total_time_s, pos_x, pos_y, yaw, vel,
				mode, throttle, brake, steer, pickup,
				nav_count, rock_count, wall_on_left, transition_from, transition_reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.MissionID, d.TotalTime.Seconds(), d.Pose.X, d.Pose.Y, d.Pose.Yaw, d.Vel,
			d.Command.Mode.String(), d.Command.Throttle, d.Command.Brake, d.Command.Steer, d.Command.Pickup,
			d.NavCount, d.RockCount, d.WallOnLeft, from, reason)
		if err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
		return nil
	})
}

// ListDecisions returns a mission's decision log in mission-time order.
func (s *MissionStore) ListDecisions(missionID string) ([]*DecisionRecord, error) {
	rows, err := s.db.Query(`
		SELECT decision_id, mission_id, total_time_s, pos_x, pos_y, yaw, vel,
		       mode, throttle, brake, steer, pickup,
		       nav_count, rock_count, wall_on_left, transition_from, transition_reason
		FROM rover_decisions
		WHERE mission_id = ?
		ORDER BY total_time_s, decision_id`, missionID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var mode string
		var from, reason sql.NullString
		if err := rows.Scan(&r.DecisionID, &r.MissionID, &r.TotalTime, &r.Pose.X, &r.Pose.Y, &r.Pose.Yaw, &r.Vel,
			&mode, &r.Command.Throttle, &r.Command.Brake, &r.Command.Steer, &r.Command.Pickup,
			&r.NavCount, &r.RockCount, &r.WallOnLeft, &from, &reason); err != nil {
			return nil, err
		}
		if r.Command.Mode, err = l5decision.ParseMode(mode); err != nil {
			return nil, fmt.Errorf("decision %d: %w", r.DecisionID, err)
		}
		r.TransitionFrom = from.String
		r.TransitionReason = reason.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

// InsertMapSnapshot stores a map snapshot and returns its ID.
func (s *MissionStore) InsertMapSnapshot(snap *l4grid.Snapshot) (int64, error) {
	var id int64
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(`
			INSERT INTO rover_map_snapshots (
				mission_id, taken_unix_nanos, grid_size, cycles,
				unknown_cells, obstacle_cells, navigable_cells, rock_cells,
				changed_cells_count, snapshot_reason, grid_blob
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.MissionID, snap.TakenUnixNanos, snap.Size, snap.Cycles,
			snap.Coverage.Unknown, snap.Coverage.Obstacle, snap.Coverage.Navigable, snap.Coverage.Rock,
			snap.ChangedCellsCount, snap.Reason, snap.GridBlob)
		if err != nil {
			return fmt.Errorf("insert map snapshot: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	snap.SnapshotID = id
	return id, nil
}

const snapshotColumns = `snapshot_id, mission_id, taken_unix_nanos, grid_size, cycles,
	unknown_cells, obstacle_cells, navigable_cells, rock_cells,
	changed_cells_count, snapshot_reason, grid_blob`

func scanSnapshot(r rowScanner) (*l4grid.Snapshot, error) {
	var s l4grid.Snapshot
	err := r.Scan(&s.SnapshotID, &s.MissionID, &s.TakenUnixNanos, &s.Size, &s.Cycles,
		&s.Coverage.Unknown, &s.Coverage.Obstacle, &s.Coverage.Navigable, &s.Coverage.Rock,
		&s.ChangedCellsCount, &s.Reason, &s.GridBlob)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestMapSnapshot returns the newest snapshot across all missions, or
// (nil, nil) when none has been stored.
func (s *MissionStore) LatestMapSnapshot() (*l4grid.Snapshot, error) {
	row := s.db.QueryRow(`SELECT ` + snapshotColumns + ` FROM rover_map_snapshots ORDER BY snapshot_id DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest map snapshot: %w", err)
	}
	return snap, nil
}

// GetMapSnapshot returns one snapshot by ID.
func (s *MissionStore) GetMapSnapshot(snapshotID int64) (*l4grid.Snapshot, error) {
	row := s.db.QueryRow(`SELECT `+snapshotColumns+` FROM rover_map_snapshots WHERE snapshot_id = ?`, snapshotID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %d: %w", snapshotID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get map snapshot: %w", err)
	}
	return snap, nil
}

// ListMapSnapshots returns a mission's snapshots without their grid
// blobs, oldest first.
func (s *MissionStore) ListMapSnapshots(missionID string) ([]*l4grid.Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT snapshot_id, mission_id, taken_unix_nanos, grid_size, cycles,
		       unknown_cells, obstacle_cells, navigable_cells, rock_cells,
		       changed_cells_count, snapshot_reason
		FROM rover_map_snapshots
		WHERE mission_id = ?
		ORDER BY snapshot_id`, missionID)
	if err != nil {
		return nil, fmt.Errorf("query map snapshots: %w", err)
	}
	defer rows.Close()

	var out []*l4grid.Snapshot
	for rows.Next() {
		var s l4grid.Snapshot
		if err := rows.Scan(&s.SnapshotID, &s.MissionID, &s.TakenUnixNanos, &s.Size, &s.Cycles,
			&s.Coverage.Unknown, &s.Coverage.Obstacle, &s.Coverage.Navigable, &s.Coverage.Rock,
			&s.ChangedCellsCount, &s.Reason); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
