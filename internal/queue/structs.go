package queue

// ConversionRequest asks a worker to convert Input into an HLS rendition set stored under UID.
type ConversionRequest struct {
	UID   string `yaml:"uid"`
	Input string `yaml:"input"`
}

type ConversionResponse struct {
	UID            string   `yaml:"uid"`
	MasterPlaylist string   `yaml:"masterPlaylist,omitempty"`
	Variants       []string `yaml:"variants,omitempty"`
	Failed         []string `yaml:"failed,omitempty"`
	Error          string   `yaml:"error,omitempty"`
}

type ConversionProgress struct {
	UID       string  `yaml:"uid"`
	State     string  `yaml:"state"`
	Rendition string  `yaml:"rendition,omitempty"`
	Percent   float64 `yaml:"percent,omitempty"`
}
