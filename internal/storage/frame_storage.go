package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// LocalFrameStorage lays frames out as <base>/<video>/<run>/<image>.jpg.
type LocalFrameStorage struct {
	basePath string
}

func NewLocalFrameStorage(basePath string) (*LocalFrameStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	return &LocalFrameStorage{basePath: basePath}, nil
}

func (fs *LocalFrameStorage) Dir() string {
	return fs.basePath
}

// SaveFrame writes the image and returns its slash-separated path relative
// to the frame directory, which is also its URL suffix under /frames/.
func (fs *LocalFrameStorage) SaveFrame(videoID, runID, imageID string, jpeg []byte) (string, error) {
	dir, err := safeJoin(fs.basePath, videoID, runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	name := imageID + ".jpg"
	if err := os.WriteFile(filepath.Join(dir, name), jpeg, 0644); err != nil {
		return "", fmt.Errorf("failed to write frame %s: %w", imageID, err)
	}
	return path.Join(videoID, runID, name), nil
}

func (fs *LocalFrameStorage) DeleteRun(videoID, runID string) error {
	dir, err := safeJoin(fs.basePath, videoID, runID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

// PruneRuns removes every run of a video except keepRunID.
func (fs *LocalFrameStorage) PruneRuns(videoID, keepRunID string) error {
	dir, err := safeJoin(fs.basePath, videoID)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keepRunID {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	return nil
}
