package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"launchpad/internal/service"
)

const maxUploadSize = 32 << 20

// Upload handles POST /v1/sessions/{sessionId}/documents as multipart form
// data with a file part and question_id, field_key and name fields.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	questionID := r.FormValue("question_id")
	if questionID == "" {
		writeError(w, http.StatusBadRequest, "question_id is required")
		return
	}

	res, err := s.UploadDocument(r.Context(), service.UploadRequest{
		QuestionID:  questionID,
		FieldKey:    r.FormValue("field_key"),
		Name:        r.FormValue("name"),
		FileName:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Content:     file,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// RemoveDocument handles DELETE /v1/sessions/{sessionId}/documents/{documentId}
func (h *SessionHandler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.RemoveDocument(r.Context(), mux.Vars(r)["documentId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
