package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/pdf-qa/internal/core"
	"gwi.com/pdf-qa/internal/extract"
	"gwi.com/pdf-qa/internal/llm"
	"gwi.com/pdf-qa/internal/store"
)

type fakeIngester struct {
	req    core.IngestRequest
	called bool
	result *core.IngestResult
	err    error
}

func (f *fakeIngester) Ingest(_ context.Context, req core.IngestRequest) (*core.IngestResult, error) {
	f.req = req
	f.called = true
	return f.result, f.err
}

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0}, nil
}

type stubCompleter struct{ chunks []llm.StreamChunk }

func (s stubCompleter) StreamCompletion(ctx context.Context, _ []llm.Message) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func newAsker(t *testing.T, em llm.Embedder, chunks ...llm.StreamChunk) *core.RetrievalService {
	t.Helper()
	vs := store.NewMemoryStore(2)
	require.NoError(t, vs.Upsert(context.Background(), "pdf-qa", []store.Record{
		{ID: "chunk-0", Values: []float32{1, 0}, Metadata: store.Metadata{Text: "stored passage"}},
	}))
	s, err := core.NewRetrievalService(em, vs, stubCompleter{chunks: chunks})
	require.NoError(t, err)
	return s
}

func newTestRouter(ing Ingester, ask Asker, maxUpload int64) http.Handler {
	return NewRouter(NewAPIHandler(ing, ask, maxUpload), "*")
}

func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "manual.pdf")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeIngester{}, nil, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUploadHandler_Success(t *testing.T) {
	ing := &fakeIngester{result: &core.IngestResult{
		Message: "Successfully processed 3 chunks",
		Chunks:  3,
		Stored:  3,
		Logs:    []string{"Extracted 10 characters"},
	}}
	body, contentType := multipartBody(t, map[string]string{"maxLength": "500"}, []byte("%PDF-1.4 data"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newTestRouter(ing, nil, 1<<20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Successfully processed 3 chunks", resp.Message)
	assert.Equal(t, 3, resp.Chunks)
	assert.Equal(t, []string{"Extracted 10 characters"}, resp.Logs)

	assert.Equal(t, "manual.pdf", ing.req.Filename)
	assert.Equal(t, []byte("%PDF-1.4 data"), ing.req.Data)
	assert.Equal(t, 500, ing.req.MaxLength)
}

func TestUploadHandler_ClientErrors(t *testing.T) {
	t.Run("no file field", func(t *testing.T) {
		ing := &fakeIngester{}
		body, contentType := multipartBody(t, map[string]string{"other": "x"}, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		newTestRouter(ing, nil, 1<<20).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"no file uploaded"}`, rec.Body.String())
		assert.False(t, ing.called)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		newTestRouter(&fakeIngester{}, nil, 1<<20).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		ing := &fakeIngester{}
		body, contentType := multipartBody(t, nil, bytes.Repeat([]byte("x"), 4096))
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		newTestRouter(ing, nil, 512).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.False(t, ing.called)
	})

	t.Run("invalid maxLength", func(t *testing.T) {
		ing := &fakeIngester{}
		body, contentType := multipartBody(t, map[string]string{"maxLength": "-3"}, []byte("%PDF-1.4"))
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		newTestRouter(ing, nil, 1<<20).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, ing.called)
	})
}

type erroringExtractor struct{ err error }

func (e erroringExtractor) Extract(context.Context, []byte) (string, error) { return "", e.err }

func TestUploadHandler_PipelineErrors(t *testing.T) {
	tests := []struct {
		name       string
		extractErr error
		embedErr   error
		wantStatus int
	}{
		{"extraction", extract.ErrMalformed, nil, http.StatusBadRequest},
		{"embedding", nil, errors.New("quota exceeded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ex extract.Extractor = erroringExtractor{err: tt.extractErr}
			if tt.extractErr == nil {
				ex = extract.Fallback{stubText("some document text")}
			}
			ing, err := core.NewIngestionService(ex, stubEmbedder{err: tt.embedErr}, store.NewMemoryStore(2))
			require.NoError(t, err)
			defer ing.Close()

			body, contentType := multipartBody(t, nil, []byte("%PDF-1.4"))
			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			newTestRouter(ing, nil, 1<<20).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.Logs)
		})
	}
}

type stubText string

func (s stubText) Extract(context.Context, []byte) (string, error) { return string(s), nil }

func query(t *testing.T, ask Asker, question string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/api/query"
	if question != "" {
		target += "?question=" + url.QueryEscape(question)
	}
	rec := httptest.NewRecorder()
	newTestRouter(&fakeIngester{}, ask, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestQueryHandler_Streams(t *testing.T) {
	ask := newAsker(t, stubEmbedder{},
		llm.StreamChunk{Content: "Hello"},
		llm.StreamChunk{Content: " world"},
		llm.StreamChunk{FinishReason: "stop", Done: true},
	)

	rec := query(t, ask, "what is stored?")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: Hello\n\ndata:  world\n\ndata: [DONE]\n\n", rec.Body.String())
}

func TestQueryHandler_MultilineFragment(t *testing.T) {
	ask := newAsker(t, stubEmbedder{}, llm.StreamChunk{Content: "line one\nline two"})

	rec := query(t, ask, "q")
	assert.Equal(t, "data: line one\ndata: line two\n\ndata: [DONE]\n\n", rec.Body.String())
}

func TestQueryHandler_MissingQuestion(t *testing.T) {
	rec := query(t, newAsker(t, stubEmbedder{}), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"question is required"}`, rec.Body.String())
}

func TestQueryHandler_FailuresEndWithDone(t *testing.T) {
	t.Run("before stream", func(t *testing.T) {
		rec := query(t, newAsker(t, stubEmbedder{err: errors.New("down")}), "q")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ": error embedding\n\ndata: [DONE]\n\n", rec.Body.String())
	})

	t.Run("mid stream", func(t *testing.T) {
		ask := newAsker(t, stubEmbedder{},
			llm.StreamChunk{Content: "Part"},
			llm.StreamChunk{Err: errors.New("reset"), Done: true},
		)
		rec := query(t, ask, "q")

		assert.Equal(t, "data: Part\n\n: error completion\n\ndata: [DONE]\n\n", rec.Body.String())
	})

	t.Run("empty answer", func(t *testing.T) {
		rec := query(t, newAsker(t, stubEmbedder{}), "q")
		assert.Equal(t, "data: [DONE]\n\n", rec.Body.String())
	})
}

func TestCORS(t *testing.T) {
	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		newTestRouter(&fakeIngester{}, nil, 0).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("allow list", func(t *testing.T) {
		router := NewRouter(NewAPIHandler(&fakeIngester{}, nil, 0), "http://a.example, http://b.example")

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://b.example")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, "http://b.example", rec.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
