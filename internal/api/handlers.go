package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gwi.com/pdf-qa/internal/core"
)

// multipartMemory is how much of an upload is held in memory before spilling
// to temp files.
const multipartMemory = 8 << 20

type Ingester interface {
	Ingest(ctx context.Context, req core.IngestRequest) (*core.IngestResult, error)
}

type Asker interface {
	Ask(ctx context.Context, question string) (*core.AnswerStream, error)
}

type APIHandler struct {
	ingester       Ingester
	asker          Asker
	maxUploadBytes int64
}

func NewAPIHandler(ingester Ingester, asker Asker, maxUploadBytes int64) *APIHandler {
	return &APIHandler{ingester: ingester, asker: asker, maxUploadBytes: maxUploadBytes}
}

type UploadResponse struct {
	Message string   `json:"message,omitempty"`
	Chunks  int      `json:"chunks"`
	Logs    []string `json:"logs,omitempty"`
}

type ErrorResponse struct {
	Error string   `json:"error"`
	Logs  []string `json:"logs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func statusFor(err error) int {
	if core.IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// UploadHandler ingests the PDF sent in the multipart field "file". An
// optional "maxLength" field overrides the chunk size.
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("file exceeds the %d byte upload limit", tooLarge.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: core.ErrNoFile.Error()})
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Printf("Warning: failed to remove upload temp files: %v", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: core.ErrNoFile.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("Error reading upload %s: %v", header.Filename, err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read uploaded file"})
		return
	}

	maxLength := 0
	if v := strings.TrimSpace(r.FormValue("maxLength")); v != "" {
		maxLength, err = strconv.Atoi(v)
		if err != nil || maxLength <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "maxLength must be a positive integer"})
			return
		}
	}

	uploadID := uuid.NewString()
	log.Printf("Upload %s: received %s (%d bytes)", uploadID, header.Filename, len(data))

	res, err := h.ingester.Ingest(r.Context(), core.IngestRequest{
		Filename:  header.Filename,
		Data:      data,
		MaxLength: maxLength,
	})
	var logs []string
	if res != nil {
		logs = res.Logs
	}
	if err != nil {
		log.Printf("Upload %s failed (%s): %v", uploadID, core.KindOf(err), err)
		writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error(), Logs: logs})
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{Message: res.Message, Chunks: res.Chunks, Logs: logs})
}

// QueryHandler streams the answer to ?question= as server-sent events. Every
// stream ends with the [DONE] sentinel. Failures after the stream has started
// are reported as an ": error <kind>" comment just before it.
func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	if strings.TrimSpace(question) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: core.ErrEmptyQuestion.Error()})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	answer, err := h.asker.Ask(r.Context(), question)
	if err != nil && core.IsClientError(err) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err != nil {
		log.Printf("Error answering question: %v", err)
		writeSSEComment(w, flusher, "error "+core.KindOf(err).String())
		writeSSEData(w, flusher, "[DONE]")
		return
	}
	defer answer.Close()

	for {
		fragment, ok := answer.Next()
		if !ok {
			break
		}
		writeSSEData(w, flusher, fragment)
	}

	if r.Context().Err() != nil {
		log.Println("Client disconnected before the answer completed")
		return
	}
	if err := answer.Err(); err != nil {
		log.Printf("Error streaming answer: %v", err)
		writeSSEComment(w, flusher, "error "+core.KindOf(err).String())
	}
	writeSSEData(w, flusher, "[DONE]")
}

// writeSSEData writes one event. Newlines in payload become separate data
// lines, which clients join back with "\n".
func writeSSEData(w http.ResponseWriter, flusher http.Flusher, payload string) {
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
	flusher.Flush()
}

func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	fmt.Fprintf(w, ": %s\n\n", comment)
	flusher.Flush()
}
