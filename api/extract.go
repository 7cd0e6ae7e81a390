package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hazyhaar/ocrapi/docpipe"
	"github.com/hazyhaar/ocrapi/horosafe"
	"github.com/hazyhaar/ocrapi/ocr"
	"github.com/hazyhaar/ocrapi/shield"
)

type extractResponse struct {
	Filename    string `json:"filename"`
	Text        string `json:"text"`
	Pages       int    `json:"pages"`
	FailedPages int    `json:"failed_pages"`
	Language    string `json:"language"`
}

func newExtractResponse(res *docpipe.Result) extractResponse {
	return extractResponse{
		Filename:    res.Filename,
		Text:        res.Text,
		Pages:       len(res.Pages),
		FailedPages: res.Failed(),
		Language:    res.Language,
	}
}

// requestError is a malformed request, answered before the pipeline runs.
type requestError struct {
	status int
	code   string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	upload, langs, err := s.readUpload(r)
	if err != nil {
		s.rejectUpload(w, r, err)
		return
	}

	ctx, cancel := s.extractContext(r)
	defer cancel()

	res, err := s.pipe.Extract(ctx, upload, docpipe.WithLanguages(langs))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logResult(r, upload, res)
	writeJSON(w, http.StatusOK, newExtractResponse(res))
}

// handleExtractStream emits one "page" event per finished page, then a
// single "result" or "error" event. Upload errors detected before the
// stream opens are plain JSON errors.
func (s *Server) handleExtractStream(w http.ResponseWriter, r *http.Request) {
	upload, langs, err := s.readUpload(r)
	if err != nil {
		s.rejectUpload(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	logger := shield.GetLogger(r.Context())
	send := func(event string, v any) {
		if err := writeEvent(w, event, v); err != nil {
			logger.Debug("sse write", "event", event, "error", err)
			return
		}
		_ = rc.Flush()
	}

	ctx, cancel := s.extractContext(r)
	defer cancel()

	res, err := s.pipe.Extract(ctx, upload,
		docpipe.WithLanguages(langs),
		docpipe.WithProgress(func(e docpipe.Event) { send("page", e) }),
	)
	if err != nil {
		status, code, msg := describe(err)
		if status >= 500 {
			logger.Error("extraction failed", "code", code, "error", err)
		}
		send("error", map[string]any{"error": msg, "code": code, "status": status})
		return
	}
	s.logResult(r, upload, res)
	send("result", newExtractResponse(res))
}

// readUpload parses the multipart body. Spilled temp files are removed
// before it returns; the upload bytes live only in the returned Upload.
func (s *Server) readUpload(r *http.Request) (docpipe.Upload, ocr.Languages, error) {
	maxFile := s.pipe.Config().MaxFileSize

	if err := r.ParseMultipartForm(s.cfg.MultipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return docpipe.Upload{}, nil, &requestError{http.StatusRequestEntityTooLarge, string(docpipe.KindFileTooLarge), "file too large"}
		}
		return docpipe.Upload{}, nil, &requestError{http.StatusBadRequest, "bad_request", "expected a multipart/form-data body"}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return docpipe.Upload{}, nil, &requestError{http.StatusBadRequest, "bad_request", "missing file field"}
	}
	defer file.Close()

	if header.Size > maxFile {
		return docpipe.Upload{}, nil, &requestError{http.StatusRequestEntityTooLarge, string(docpipe.KindFileTooLarge),
			fmt.Sprintf("file too large (max %d bytes)", maxFile)}
	}
	data, err := horosafe.LimitedReadAll(file, maxFile)
	if err != nil {
		if errors.Is(err, horosafe.ErrTooLarge) {
			return docpipe.Upload{}, nil, &requestError{http.StatusRequestEntityTooLarge, string(docpipe.KindFileTooLarge),
				fmt.Sprintf("file too large (max %d bytes)", maxFile)}
		}
		return docpipe.Upload{}, nil, fmt.Errorf("read upload: %w", err)
	}

	var langs ocr.Languages
	if v := r.FormValue("lang"); v != "" {
		if langs, err = ocr.ParseLanguages(v); err != nil {
			return docpipe.Upload{}, nil, &requestError{http.StatusBadRequest, string(docpipe.KindLanguageUnavailable), err.Error()}
		}
	}

	return docpipe.Upload{
		Filename:  horosafe.SafeFilename(header.Filename),
		MediaType: header.Header.Get("Content-Type"),
		Data:      data,
	}, langs, nil
}

func (s *Server) rejectUpload(w http.ResponseWriter, r *http.Request, err error) {
	var re *requestError
	if errors.As(err, &re) {
		shield.GetLogger(r.Context()).Info("upload rejected", "code", re.code, "error", re.msg)
		writeError(w, re.status, re.code, re.msg)
		return
	}
	s.internalError(w, r, err)
}

func (s *Server) logResult(r *http.Request, u docpipe.Upload, res *docpipe.Result) {
	shield.GetLogger(r.Context()).Info("extraction done",
		"format", res.Format,
		"size", u.Size(),
		"pages", len(res.Pages),
		"failed_pages", res.Failed(),
		"chars", len([]rune(res.Text)),
		"duration_ms", res.Duration.Milliseconds(),
	)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, map[string]string{"error": msg, "code": kind})
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
