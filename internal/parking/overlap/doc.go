// Package overlap scores how much of a parking spot a detection box covers.
//
// The score is intersection area divided by the spot's own area, not IoU:
// a large vehicle box that swallows a small spot scores 1.0.
package overlap
