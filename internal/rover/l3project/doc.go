// Package l3project owns Layer 3 (Projection) of the rover data model.
//
// Responsibilities: range and field-of-view filtering of rover-frame
// pixels, and projection of the survivors into absolute world-grid cells.
// Key types: Projector, Projection, Frame.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3project
