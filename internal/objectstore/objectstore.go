package objectstore

import (
	"context"
	"path"
	"strings"
)

// Backend abstracts the object storage operations the pipeline needs.
type Backend interface {
	// EnsureBucket creates the configured bucket when it does not exist
	// and applies a public-read policy so HLS segments can be streamed
	// directly.
	EnsureBucket(ctx context.Context) error

	// Put uploads a local file under the given object name.
	Put(ctx context.Context, localPath, objectName, contentType string) error

	// RemovePrefix deletes every object under the given prefix.
	RemovePrefix(ctx context.Context, prefix string) error

	// PublicURL returns the browser-reachable URL for an object.
	PublicURL(objectName string) string
}

// ContentTypeFor maps a file name to the content type stored alongside the
// object. HLS playback requires the playlist and segment types to be exact.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return "application/x-mpegURL"
	case ".ts":
		return "video/MP2T"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
