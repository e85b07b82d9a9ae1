// Package media joins video segments with the ffmpeg CLI.
package media

import "context"

// Concatenator joins ordered video files into a single output file.
type Concatenator interface {
	// Concatenate writes the videos at orderedPaths, in order, to output.
	// Streams are copied without re-encoding, so all inputs must share
	// codec parameters.
	Concatenate(ctx context.Context, orderedPaths []string, output string) error
}
