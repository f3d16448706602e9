// Package objectstore uploads transcoded renditions to S3-compatible
// object storage and derives the public playback URLs for them.
package objectstore
