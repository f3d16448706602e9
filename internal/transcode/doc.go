// Package transcode wraps the ffmpeg and ffprobe command line tools.
//
// Transcoding produces an HLS rendition (index.m3u8 plus MPEG-TS segments)
// inside a caller-supplied output directory. Progress is derived from
// ffmpeg's machine-readable -progress stream against the probed source
// duration.
package transcode
