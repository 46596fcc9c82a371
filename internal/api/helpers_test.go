package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/vsearch/internal/ai"
	"github.com/kdimtricp/vsearch/internal/analysis"
	"github.com/kdimtricp/vsearch/internal/database"
	"github.com/kdimtricp/vsearch/internal/index"
	"github.com/kdimtricp/vsearch/internal/jobs"
	"github.com/kdimtricp/vsearch/internal/metrics"
	"github.com/kdimtricp/vsearch/internal/models"
	"github.com/kdimtricp/vsearch/internal/query"
	"github.com/kdimtricp/vsearch/internal/storage"
)

type stubProber struct{}

func (stubProber) Probe(context.Context, string) (ai.VideoInfo, error) {
	return ai.VideoInfo{Duration: 8, FrameRate: 25}, nil
}

type stubSampler struct{}

func (stubSampler) Sample(context.Context, string, ai.VideoInfo) ([]ai.SampledFrame, error) {
	return []ai.SampledFrame{
		{Index: 0, Timestamp: 1, JPEG: []byte("jpeg")},
		{Index: 1, Timestamp: 6.5, JPEG: []byte("jpeg")},
	}, nil
}

// stubProcessor sees one person in a pink top per frame. It blocks on gate
// when gate is set.
type stubProcessor struct {
	gate chan struct{}
}

func (p *stubProcessor) Process(_ context.Context, _ ai.SampledFrame, frame models.Frame, _ *analysis.CostTracker) models.FrameResult {
	if p.gate != nil {
		<-p.gate
	}
	det := models.Detection{
		ImageID:    frame.ImageID,
		Label:      "person",
		BBox:       models.BBox{X: 0.2, Y: 0.1, Width: 0.3, Height: 0.8},
		Confidence: 0.88,
	}
	return models.FrameResult{
		Frame:      frame,
		Detections: []models.Detection{det},
		Persons: []models.Person{{
			Detection: det,
			Attributes: models.PersonAttributes{
				Gender:   models.GenderFemale,
				AgeGroup: models.AgeYoungAdult,
				Emotion:  models.EmotionNeutral,
				Source:   models.SourcePrimary,
				Decision: models.DecisionPrimary,
			},
			Colors: models.ClothingColors{
				Upper: models.ClothingColor{Region: models.RegionUpper, Label: "pink"},
				Lower: models.ClothingColor{Region: models.RegionLower, Label: "blue"},
			},
		}},
		Caption: models.FrameCaption{Caption: "a woman sitting", SceneType: "indoor", Lighting: "normal"},
	}
}

type testServer struct {
	app       *App
	server    *httptest.Server
	processor *stubProcessor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.NewDB(ctx, database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	}, logger)
	require.NoError(t, err)

	uploads, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	frames, err := storage.NewLocalFrameStorage(t.TempDir())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	require.NoError(t, err)

	videoRepo := database.NewVideoRepository(db)
	indexRepo := database.NewIndexRepository(db)
	engine := query.NewEngine(videoRepo, indexRepo, query.Config{}, m, logger)
	indexer := index.NewIndexer(indexRepo, logger)
	indexer.OnCommit(engine.Invalidate)

	processor := &stubProcessor{}
	svc := jobs.NewService(videoRepo, uploads, frames, stubProber{}, stubSampler{}, processor, indexer,
		jobs.Config{FrameWorkers: 2}, m, logger)

	app := &App{
		Storage:       uploads,
		VideoRepo:     videoRepo,
		IndexRepo:     indexRepo,
		Jobs:          svc,
		Engine:        engine,
		FrameDir:      frames.Dir(),
		MaxUploadSize: 10 << 20,
		Registry:      registry,
		Logger:        logger,
	}
	ts := &testServer{app: app, server: httptest.NewServer(NewRouter(app)), processor: processor}

	t.Cleanup(func() {
		ts.server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, svc.Shutdown(ctx))
		db.Close()
	})
	return ts
}

func (ts *testServer) url(path string) string {
	return ts.server.URL + path
}

func (ts *testServer) upload(t *testing.T, filename string, content []byte) string {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "Street clip"))
	fw, err := mw.CreateFormFile("video", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.url("/api/videos"), mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID             string `json:"id"`
		AnalysisStatus string `json:"analysis_status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "pending", created.AnalysisStatus)
	require.NotEmpty(t, created.ID)
	return created.ID
}

func (ts *testServer) waitForJob(videoID string) {
	if job, running := ts.app.Jobs.Active(videoID); running {
		<-job.Done()
	}
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
