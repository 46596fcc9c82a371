package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/vsearch/internal/models"
)

func TestPingHandler(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.url("/ping"))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestUploadAndList(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t, "street.mp4", []byte("fake video data"))

	var video models.Video
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.url("/api/videos/"+id), nil, &video))
	assert.Equal(t, "Street clip", video.Title)
	assert.Equal(t, models.StatusPending, video.AnalysisStatus)
	assert.Equal(t, "Waiting for analysis", video.AnalysisMessage)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 1},
		{"matching title", "?q=street", 1},
		{"no match", "?q=zzz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var videos []models.Video
			require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.url("/api/videos"+tt.query), nil, &videos))
			assert.NotNil(t, videos)
			assert.Len(t, videos, tt.want)
		})
	}
}

func TestUploadRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing file", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("title", "nothing"))
		require.NoError(t, mw.Close())

		resp, err := http.Post(ts.url("/api/videos"), mw.FormDataContentType(), &body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not a video", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="video"; filename="notes.txt"`)
		h.Set("Content-Type", "text/plain")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		part.Write([]byte("hello"))
		require.NoError(t, mw.Close())

		resp, err := http.Post(ts.url("/api/videos"), mw.FormDataContentType(), &body)
		require.NoError(t, err)
		defer resp.Body.Close()

		var errResp errorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, errResp.Error, "Only MP4")
	})
}

func TestGetVideoNotFound(t *testing.T) {
	ts := newTestServer(t)

	var errResp errorResponse
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.url("/api/videos/missing"), nil, &errResp))
	assert.Equal(t, "Video not found", errResp.Error)
}

func TestStreamVideoHandler_RangeRequests(t *testing.T) {
	ts := newTestServer(t)
	content := bytes.Repeat([]byte("0123456789abcdef"), 256)
	id := ts.upload(t, "clip.mp4", content)

	tests := []struct {
		name         string
		rangeHeader  string
		expectStatus int
		expectLength int
	}{
		{"Full content request", "", http.StatusOK, len(content)},
		{"Range request", "bytes=0-1023", http.StatusPartialContent, 1024},
		{"Suffix range", "bytes=-16", http.StatusPartialContent, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.url("/api/videos/"+id+"/stream"), nil)
			require.NoError(t, err)
			if tt.rangeHeader != "" {
				req.Header.Set("Range", tt.rangeHeader)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.expectStatus, resp.StatusCode)
			assert.Len(t, body, tt.expectLength)
			assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
			assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/octet-stream") ||
				strings.HasPrefix(resp.Header.Get("Content-Type"), "video/"))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	doJSON(t, http.MethodPost, ts.url("/api/query"), map[string]string{"video_id": "missing", "query_text": "사람"}, nil)

	resp, err := http.Get(ts.url("/metrics"))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `vsearch_queries_total{intent="person",status="no_data"} 1`)
}
