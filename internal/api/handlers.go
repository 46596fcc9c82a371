package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kdimtricp/vsearch/internal/database"
	"github.com/kdimtricp/vsearch/internal/jobs"
	"github.com/kdimtricp/vsearch/internal/models"
	"github.com/kdimtricp/vsearch/internal/query"
	"github.com/kdimtricp/vsearch/internal/storage"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type App struct {
	Storage       storage.Storage
	VideoRepo     *database.VideoRepository
	IndexRepo     *database.IndexRepository
	Jobs          *jobs.Service
	Engine        *query.Engine
	FrameDir      string
	MaxUploadSize int64
	Registry      *prometheus.Registry
	Logger        *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.renderError(w, http.StatusBadRequest, "File too large")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		app.renderError(w, http.StatusBadRequest, "Failed to get file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") && contentType != "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".mp4":
			contentType = "video/mp4"
		case ".mov":
			contentType = "video/quicktime"
		case ".webm":
			contentType = "video/webm"
		default:
			app.renderError(w, http.StatusBadRequest, "Only MP4, MOV and WebM video files are allowed")
			return
		}
	}

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	description := r.FormValue("description")

	filename, err := app.Storage.SaveFile(file, storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		app.Logger.Error("Failed to save upload", "filename", header.Filename, "error", err)
		app.renderError(w, http.StatusInternalServerError, "Failed to save file")
		return
	}

	video := models.NewVideo(title, description, filename, contentType, header.Size)
	if err := app.VideoRepo.InsertVideo(r.Context(), video); err != nil {
		app.Storage.DeleteFile(filename)
		app.Logger.Error("Failed to insert video", "error", err)
		app.renderError(w, http.StatusInternalServerError, "Failed to save video information")
		return
	}

	app.Logger.Info("Video uploaded", "video_id", video.ID, "size", video.Size)
	app.renderJSON(w, http.StatusCreated, map[string]any{
		"id":              video.ID,
		"analysis_status": video.AnalysisStatus,
	})
}

func (app *App) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := app.VideoRepo.SearchVideos(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		app.Logger.Error("Failed to list videos", "error", err)
		app.renderError(w, http.StatusInternalServerError, "Error loading videos")
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}
	app.renderJSON(w, http.StatusOK, videos)
}

func (app *App) GetVideoHandler(w http.ResponseWriter, r *http.Request) {
	video, ok := app.loadVideo(w, r)
	if !ok {
		return
	}
	app.renderJSON(w, http.StatusOK, video)
}

func (app *App) StreamVideoHandler(w http.ResponseWriter, r *http.Request) {
	video, ok := app.loadVideo(w, r)
	if !ok {
		return
	}

	file, err := app.Storage.OpenFile(video.Filename)
	if err != nil {
		http.Error(w, "Video file not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	stat, err := file.(interface{ Stat() (os.FileInfo, error) }).Stat()
	if err != nil {
		http.Error(w, "Error accessing video file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", video.ContentType)

	// ServeContent answers Range requests with 206 Partial Content.
	http.ServeContent(w, r, video.Filename, stat.ModTime(), file)
}

// loadVideo writes the error response itself when it returns false.
func (app *App) loadVideo(w http.ResponseWriter, r *http.Request) (*models.Video, bool) {
	videoID := chi.URLParam(r, "id")
	if videoID == "" {
		app.renderError(w, http.StatusNotFound, "Video not found")
		return nil, false
	}

	video, err := app.VideoRepo.GetVideoByID(r.Context(), videoID)
	if err != nil {
		app.renderStoreError(w, err)
		return nil, false
	}
	return video, true
}

func (app *App) renderStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		app.renderError(w, http.StatusNotFound, "Video not found")
	case errors.Is(err, jobs.ErrJobRunning):
		app.renderError(w, http.StatusConflict, "Analysis already running")
	case errors.Is(err, jobs.ErrNoActiveJob):
		app.renderError(w, http.StatusConflict, "No analysis running")
	default:
		app.Logger.Error("Request failed", "error", err)
		app.renderError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (app *App) renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Warn("Failed to encode response", "error", err)
	}
}

func (app *App) renderError(w http.ResponseWriter, status int, message string) {
	app.renderJSON(w, status, errorResponse{Error: message})
}
