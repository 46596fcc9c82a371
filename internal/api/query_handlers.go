package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kdimtricp/vsearch/internal/index"
	"github.com/kdimtricp/vsearch/internal/query"
)

const maxQueryBody = 64 << 10

// QueryHandler answers 200 for every well-formed request; a video without
// a committed index is reported as status no_data in the body.
func (app *App) QueryHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBody)

	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.renderError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.VideoID == "" {
		app.renderError(w, http.StatusBadRequest, "video_id is required")
		return
	}

	resp := app.Engine.Query(r.Context(), req)
	app.Logger.Debug("Query answered",
		"video_id", req.VideoID,
		"intent", resp.Intent,
		"status", resp.Status,
		"results", len(resp.Results))
	app.renderJSON(w, http.StatusOK, resp)
}

func (app *App) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	video, ok := app.loadVideo(w, r)
	if !ok {
		return
	}

	frames, err := app.IndexRepo.LoadMetadata(r.Context(), video.ID)
	if err != nil {
		app.renderStoreError(w, err)
		return
	}
	if frames == nil {
		frames = []index.MetadataFrame{}
	}
	app.renderJSON(w, http.StatusOK, frames)
}

func (app *App) DetectionsHandler(w http.ResponseWriter, r *http.Request) {
	video, ok := app.loadVideo(w, r)
	if !ok {
		return
	}

	dets, err := app.IndexRepo.LoadDetections(r.Context(), video.ID)
	if err != nil {
		app.renderStoreError(w, err)
		return
	}
	if dets == nil {
		dets = []index.DetectionRecord{}
	}
	app.renderJSON(w, http.StatusOK, dets)
}
