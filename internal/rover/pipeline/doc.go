// Package pipeline runs one perception and decision cycle per telemetry
// frame.
//
// It owns the mission's RoverState and wires the layers together in a
// fixed order: classify (L2), project (L3), accumulate and wall heuristic
// (L4), decide (L5). Adapter sinks for actuator commands, the decision log
// and map snapshots are optional and live outside the layer packages
// (internal/serialmux, internal/rover/storage/sqlite). The pipeline holds
// no domain logic of its own.
package pipeline
