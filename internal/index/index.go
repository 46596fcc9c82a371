// Package index assembles analysis output into the two persisted stores:
// the raw detection store and the denormalized metadata store the query
// engine reads.
package index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kdimtricp/vsearch/internal/models"
)

var ErrInconsistentIndex = errors.New("inconsistent index")

type ClothingColorsRecord struct {
	Upper string `json:"upper"`
	Lower string `json:"lower"`
}

type PersonRecord struct {
	BBox           models.BBox          `json:"bbox"`
	Gender         string               `json:"gender"`
	Age            int                  `json:"age"`
	AgeGroup       string               `json:"age_group"`
	Emotion        string               `json:"emotion"`
	Confidence     float64              `json:"confidence"`
	Source         string               `json:"source"`
	Decision       string               `json:"decision"`
	LowConfidence  bool                 `json:"low_confidence"`
	ClothingColors ClothingColorsRecord `json:"clothing_colors"`
}

type ObjectRecord struct {
	Label      string      `json:"label"`
	BBox       models.BBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// MetadataFrame is one frame of the metadata store. Everything the query
// engine needs is embedded so reads never join.
type MetadataFrame struct {
	ImageID   string         `json:"image_id"`
	Timestamp float64        `json:"timestamp"`
	ImageURL  string         `json:"image_url"`
	Persons   []PersonRecord `json:"persons"`
	Objects   []ObjectRecord `json:"objects"`
	Caption   string         `json:"caption"`
	SceneType string         `json:"scene_type"`
	Lighting  string         `json:"lighting"`
}

// DetectionRecord is one raw detector output, person or not.
type DetectionRecord struct {
	ImageID    string      `json:"image_id"`
	Label      string      `json:"label"`
	BBox       models.BBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// Index is a complete, validated analysis run for one video.
type Index struct {
	VideoID    string
	RunID      string
	Cost       float64
	Frames     []MetadataFrame
	Detections []DetectionRecord
}

// Build converts pipeline results into both stores, ordered by timestamp,
// then image id, then detection order. imageURL may be nil.
func Build(videoID, runID string, results []models.FrameResult, imageURL func(models.Frame) string) (*Index, error) {
	sorted := make([]models.FrameResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Frame, sorted[j].Frame
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.ImageID < b.ImageID
	})

	idx := &Index{
		VideoID:    videoID,
		RunID:      runID,
		Frames:     make([]MetadataFrame, 0, len(sorted)),
		Detections: []DetectionRecord{},
	}

	for _, r := range sorted {
		mf := MetadataFrame{
			ImageID:   r.Frame.ImageID,
			Timestamp: r.Frame.Timestamp,
			Persons:   make([]PersonRecord, 0, len(r.Persons)),
			Objects:   []ObjectRecord{},
			Caption:   r.Caption.Caption,
			SceneType: r.Caption.SceneType,
			Lighting:  r.Caption.Lighting,
		}
		if imageURL != nil {
			mf.ImageURL = imageURL(r.Frame)
		}

		for _, d := range r.Detections {
			idx.Detections = append(idx.Detections, DetectionRecord{
				ImageID:    r.Frame.ImageID,
				Label:      d.Label,
				BBox:       d.BBox,
				Confidence: d.Confidence,
			})
			if !d.IsPerson() {
				mf.Objects = append(mf.Objects, ObjectRecord{Label: d.Label, BBox: d.BBox, Confidence: d.Confidence})
			}
		}

		for _, p := range r.Persons {
			mf.Persons = append(mf.Persons, personRecord(p))
			idx.Cost += p.Attributes.Cost
		}

		idx.Frames = append(idx.Frames, mf)
	}

	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

func personRecord(p models.Person) PersonRecord {
	a := p.Attributes
	return PersonRecord{
		BBox:          p.Detection.BBox,
		Gender:        string(a.Gender),
		Age:           a.Age,
		AgeGroup:      string(a.AgeGroup),
		Emotion:       string(a.Emotion),
		Confidence:    a.Confidence,
		Source:        string(a.Source),
		Decision:      string(a.Decision),
		LowConfidence: a.LowConfidence,
		ClothingColors: ClothingColorsRecord{
			Upper: p.Colors.Upper.Label,
			Lower: p.Colors.Lower.Label,
		},
	}
}

// Validate checks that image ids are unique and non-empty, frames are in
// timestamp order, and every detection belongs to an indexed frame.
func (idx *Index) Validate() error {
	if idx.VideoID == "" || idx.RunID == "" {
		return fmt.Errorf("%w: missing video or run id", ErrInconsistentIndex)
	}

	seen := make(map[string]struct{}, len(idx.Frames))
	for i, f := range idx.Frames {
		if f.ImageID == "" {
			return fmt.Errorf("%w: frame %d has no image id", ErrInconsistentIndex, i)
		}
		if _, dup := seen[f.ImageID]; dup {
			return fmt.Errorf("%w: duplicate image id %s", ErrInconsistentIndex, f.ImageID)
		}
		seen[f.ImageID] = struct{}{}
		if i > 0 && f.Timestamp < idx.Frames[i-1].Timestamp {
			return fmt.Errorf("%w: frame %s out of order", ErrInconsistentIndex, f.ImageID)
		}
	}

	for _, d := range idx.Detections {
		if _, ok := seen[d.ImageID]; !ok {
			return fmt.Errorf("%w: detection references unknown frame %s", ErrInconsistentIndex, d.ImageID)
		}
	}
	return nil
}

// CompletedMessage is the analysis message stored with a committed run.
func (idx *Index) CompletedMessage() string {
	return fmt.Sprintf("Analysis completed: %d frames indexed", len(idx.Frames))
}

// PersonCount is the number of person records across all frames.
func (idx *Index) PersonCount() int {
	n := 0
	for _, f := range idx.Frames {
		n += len(f.Persons)
	}
	return n
}
