// Package geometry owns the static description of a monitored lot: spot
// polygons in rectified frame coordinates and the detection boxes they are
// compared against.
//
// Responsibilities: polygon validation, shoelace area, bounding rectangles,
// convex clipping and per-spot raster masks.
// Key types: Spot, Point, Rect, Box.
//
// Dependency rule: geometry depends on nothing else under internal/parking.
// Everything here is pure; a Spot never changes after NewSpot returns.
package geometry
