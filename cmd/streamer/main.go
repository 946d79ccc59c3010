package main

import (
	_ "github.com/ali-d-coded/video-streaming-app/internal/command/convert"
	"github.com/ali-d-coded/video-streaming-app/internal/command/root"
	_ "github.com/ali-d-coded/video-streaming-app/internal/command/serve"
	_ "github.com/ali-d-coded/video-streaming-app/internal/command/worker"
)

func main() {
	root.Execute()
}
