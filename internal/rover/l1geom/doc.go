// Package l1geom owns Layer 1 (Geometry) of the rover data model.
//
// Responsibilities: image-pixel to rover-frame conversion, rover-frame
// polar descriptions, and the rover-frame to world-grid transform.
// Key types: Cell, Pose.
//
// Dependency rule: L1 is a leaf. It must not import any other rover layer.
// Every function in this package is pure.
package l1geom
