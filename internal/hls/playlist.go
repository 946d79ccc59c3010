package hls

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

const MasterPlaylistName = "master.m3u8"

// MasterPlaylist renders the multivariant playlist for variants, in the given order.
func MasterPlaylist(variants []Variant) ([]byte, error) {
	var b bytes.Buffer

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for _, v := range variants {
		bandwidth, err := v.Bandwidth()

		if err != nil {
			return nil, err
		}

		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", bandwidth, v.Width, v.Height)
		fmt.Fprintf(&b, "%s\n", v.Playlist)
	}

	return b.Bytes(), nil
}

// WriteMasterPlaylist writes outputDir/master.m3u8 atomically and returns its path.
func WriteMasterPlaylist(outputDir string, variants []Variant) (string, error) {
	p := filepath.Join(outputDir, MasterPlaylistName)

	content, err := MasterPlaylist(variants)

	if err != nil {
		return "", &PlaylistWriteError{Path: p, Err: err}
	}

	if err = renameio.WriteFile(p, content, 0644); err != nil {
		return "", &PlaylistWriteError{Path: p, Err: errors.Wrap(err, "unable to write master playlist")}
	}

	return p, nil
}
