// Package sqlite persists rover missions: one row per mission, the
// per-cycle decision log and periodic world map snapshots. The schema is
// owned by internal/db migrations.
package sqlite
