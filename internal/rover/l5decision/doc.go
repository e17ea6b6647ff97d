// Package l5decision owns Layer 5 (Decision) of the rover data model.
//
// Responsibilities: the timed wall-following state machine that turns
// per-frame perception summaries and rover kinematics into throttle,
// brake and steer commands, including wall-loss, path-disruption, stuck
// escape and rock pickup behaviours.
// Key types: Controller, State, Mode, Command, Inputs.
//
// Dependency rule: L5 may depend on L1-L4, but never on the pipeline.
// The controller never reads the world map; it only sees the summaries
// passed in Inputs.
package l5decision
