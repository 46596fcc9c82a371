package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kdimtricp/vsearch/internal/jobs"
	"github.com/kdimtricp/vsearch/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type analysisProgress struct {
	AnalysisProgress int    `json:"analysis_progress"`
	AnalysisMessage  string `json:"analysis_message"`
}

type analysisStatusResponse struct {
	VideoID        string                `json:"video_id"`
	AnalysisStatus models.AnalysisStatus `json:"analysis_status"`
	Progress       analysisProgress      `json:"progress"`
	RunID          string                `json:"run_id,omitempty"`
	AnalysisCost   float64               `json:"analysis_cost"`
	Running        bool                  `json:"running"`
}

func (app *App) StartAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	video, ok := app.loadVideo(w, r)
	if !ok {
		return
	}

	job, err := app.Jobs.Start(r.Context(), video.ID)
	if err != nil {
		app.renderStoreError(w, err)
		return
	}

	app.renderJSON(w, http.StatusAccepted, map[string]any{
		"status":   models.StatusPending,
		"video_id": job.VideoID,
		"run_id":   job.RunID,
	})
}

func (app *App) AnalysisStatusHandler(w http.ResponseWriter, r *http.Request) {
	video, ok := app.loadVideo(w, r)
	if !ok {
		return
	}

	_, running := app.Jobs.Active(video.ID)
	app.renderJSON(w, http.StatusOK, analysisStatusResponse{
		VideoID:        video.ID,
		AnalysisStatus: video.AnalysisStatus,
		Progress: analysisProgress{
			AnalysisProgress: video.AnalysisProgress,
			AnalysisMessage:  video.AnalysisMessage,
		},
		RunID:        video.RunID,
		AnalysisCost: video.AnalysisCost,
		Running:      running,
	})
}

func (app *App) CancelAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	video, ok := app.loadVideo(w, r)
	if !ok {
		return
	}

	if err := app.Jobs.Cancel(video.ID); err != nil {
		app.renderStoreError(w, err)
		return
	}
	app.renderJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// AnalysisProgressHandler streams job updates over a websocket. The first
// message is the stored state; the socket is closed after a terminal update.
func (app *App) AnalysisProgressHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	// Subscribe before reading the stored state so no update falls between.
	updates, unsubscribe := app.Jobs.Subscribe(videoID)
	defer unsubscribe()

	video, ok := app.loadVideo(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.Logger.Warn("Websocket upgrade failed", "video_id", video.ID, "error", err)
		return
	}
	defer conn.Close()

	snapshot := jobs.Update{
		VideoID:  video.ID,
		RunID:    video.RunID,
		Status:   video.AnalysisStatus,
		Progress: video.AnalysisProgress,
		Message:  video.AnalysisMessage,
		Time:     video.UpdatedAt,
	}
	if err := writeUpdate(conn, snapshot); err != nil {
		return
	}
	if _, running := app.Jobs.Active(video.ID); !running && video.AnalysisStatus.Terminal() {
		closeNormally(conn)
		return
	}

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeUpdate(conn, u); err != nil {
				return
			}
			if u.Status.Terminal() {
				closeNormally(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// readPump only detects disconnection; clients send nothing.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeUpdate(conn *websocket.Conn, u jobs.Update) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(u)
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
