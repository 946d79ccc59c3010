package ladder

import (
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Rendition is one candidate output quality.
type Rendition struct {
	Name    string `yaml:"name" json:"name"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
	Bitrate string `yaml:"bitrate" json:"bitrate"`
}

// Ladder is ordered by strictly increasing height.
type Ladder []Rendition

// Default is the built-in catalog used when no ladder file is configured.
var Default = Ladder{
	{Name: "240p", Width: 426, Height: 240, Bitrate: "400k"},
	{Name: "360p", Width: 640, Height: 360, Bitrate: "800k"},
	{Name: "720p", Width: 1280, Height: 720, Bitrate: "2500k"},
	{Name: "1080p", Width: 1920, Height: 1080, Bitrate: "5000k"},
}

// maxBandwidth keeps BANDWIDTH within a 32 bit integer.
const maxBandwidth = math.MaxInt32

var (
	nameRe    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	bitrateRe = regexp.MustCompile(`^([0-9]+)([kKmM]?)$`)
)

// Select keeps the renditions whose height does not exceed the source height.
func Select(l Ladder, sourceHeight int) Ladder {
	selected := make(Ladder, 0, len(l))

	for _, r := range l {
		if r.Height <= sourceHeight {
			selected = append(selected, r)
		}
	}

	return selected
}

// Bandwidth returns the peak bandwidth announced in the master playlist, in bits per second.
// "800k" is 800000, "5M" is 5000000 and a bare number is taken as bits per second.
func (r Rendition) Bandwidth() (int, error) {
	m := bitrateRe.FindStringSubmatch(strings.TrimSpace(r.Bitrate))

	if m == nil {
		return 0, errors.Errorf("invalid bitrate '%s' for rendition '%s'", r.Bitrate, r.Name)
	}

	n, err := strconv.Atoi(m[1])

	if err != nil {
		return 0, errors.Wrapf(err, "invalid bitrate '%s' for rendition '%s'", r.Bitrate, r.Name)
	}

	multiplier := 1

	switch m[2] {
	case "k", "K":
		multiplier = 1000
	case "m", "M":
		multiplier = 1000000
	}

	if n > maxBandwidth/multiplier {
		return 0, errors.Errorf("bitrate '%s' for rendition '%s' is out of range", r.Bitrate, r.Name)
	}

	return n * multiplier, nil
}

// Validate checks the ordering and naming invariants the encoder and the HTTP layer rely on.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return errors.New("ladder is empty")
	}

	names := make(map[string]bool, len(l))

	for i, r := range l {
		if !nameRe.MatchString(r.Name) {
			return errors.Errorf("invalid rendition name '%s'", r.Name)
		}

		if names[r.Name] {
			return errors.Errorf("duplicate rendition name '%s'", r.Name)
		}

		names[r.Name] = true

		if r.Width <= 0 || r.Height <= 0 {
			return errors.Errorf("invalid size %dx%d for rendition '%s'", r.Width, r.Height, r.Name)
		}

		if i > 0 && r.Height <= l[i-1].Height {
			return errors.Errorf("rendition '%s' height %d is not greater than '%s' height %d", r.Name, r.Height, l[i-1].Name, l[i-1].Height)
		}

		if _, err := r.Bandwidth(); err != nil {
			return err
		}
	}

	return nil
}

// Load reads a YAML ladder file:
//
//	- name: 480p
//	  width: 854
//	  height: 480
//	  bitrate: 1400k
func Load(path string) (Ladder, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return nil, errors.Wrapf(err, "unable to read ladder file '%s'", path)
	}

	var l Ladder

	if err = yaml.UnmarshalStrict(data, &l); err != nil {
		return nil, errors.Wrapf(err, "unable to decode ladder file '%s'", path)
	}

	if err = l.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid ladder file '%s'", path)
	}

	return l, nil
}
