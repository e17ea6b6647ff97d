// Package l2vision owns Layer 2 (Vision) of the rover data model.
//
// Responsibilities: colour-space primitives, ground-plane rectification of
// the camera frame, and classification of each frame into navigable,
// obstacle and rock masks.
// Key types: Mask, Masks, Classifier, Perspective.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2vision
