package hls

import (
	"path"
	"strings"
)

const (
	PlaylistContentType = "application/x-mpegURL"
	SegmentContentType  = "video/MP2T"
)

// ContentType returns the media type of an HLS artifact from its name, or "" when unknown.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return PlaylistContentType
	case ".ts":
		return SegmentContentType
	}

	return ""
}
