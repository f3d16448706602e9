package objectstore

import (
	"testing"

	"slipstream/internal/config"
	"slipstream/internal/logging"
)

func TestContentTypeFor(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"index.m3u8", "application/x-mpegURL"},
		{"segment_000.ts", "video/MP2T"},
		{"clip.mp4", "video/mp4"},
		{"clip.webm", "video/webm"},
		{"clip.MOV", "video/quicktime"},
		{"meta.json", "application/json"},
		{"README", "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := ContentTypeFor(tc.name); got != tc.want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPublicURLFromEndpoint(t *testing.T) {
	backend, err := NewMinIO(config.Storage{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "videos",
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewMinIO: %v", err)
	}

	got := backend.PublicURL("job-1/index.m3u8")
	if want := "http://localhost:9000/videos/job-1/index.m3u8"; got != want {
		t.Fatalf("PublicURL = %q, want %q", got, want)
	}
}

func TestPublicURLPrefersConfiguredBase(t *testing.T) {
	backend, err := NewMinIO(config.Storage{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "videos",
		UseSSL:    true,
		PublicURL: "https://cdn.example.com/",
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewMinIO: %v", err)
	}

	got := backend.PublicURL("/job-1/index.m3u8")
	if want := "https://cdn.example.com/videos/job-1/index.m3u8"; got != want {
		t.Fatalf("PublicURL = %q, want %q", got, want)
	}
}
