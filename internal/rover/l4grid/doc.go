// Package l4grid owns Layer 4 (Grid) of the rover data model.
//
// Responsibilities: the never-decaying obstacle/navigable vote grid, the
// consensus render map derived from it, the instantaneous wall-on-left
// heuristic, and snapshot persistence of the map.
// Key types: WorldMap, VoteCell, CellClass, Snapshot.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
// No SQL/database code is allowed in this package.
package l4grid
