// Package engine runs the per-lot occupancy loop: rectify a frame, ask the
// detector for vehicles, score every spot, debounce the observations and
// report only frames that change something.
//
// One Engine owns one lot. All mutable spot state is confined to the
// goroutine calling Step, ProcessFrame or Run; readers on other goroutines
// use Snapshot and Stats.
//
// Dependency rule: engine imports geometry, overlap, temporal, rectify and
// enhance.
// Concrete detectors, frame sources and sinks live in sibling packages and
// depend on engine, never the other way round.
package engine
