package storage

import (
	"errors"
	"io"
)

var ErrInvalidPath = errors.New("invalid path")

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage holds uploaded source videos.
type Storage interface {
	SaveFile(file io.Reader, info FileInfo) (string, error)
	OpenFile(path string) (io.ReadSeekCloser, error)
	DeleteFile(path string) error
	// LocalPath resolves a stored name to a path ffmpeg can read.
	LocalPath(path string) (string, error)
}

// FrameStore holds sampled frame images, grouped by video and run so that a
// superseded run can be removed as a unit.
type FrameStore interface {
	SaveFrame(videoID, runID, imageID string, jpeg []byte) (string, error)
	DeleteRun(videoID, runID string) error
	PruneRuns(videoID, keepRunID string) error
}
