package handler

import (
	"net/http"

	"cdr.dev/slog/v3"

	"ecoleafdrive/internal/domain"
	"ecoleafdrive/internal/service"
)

type NoteHandler struct {
	noteService *service.NoteService
	logger      slog.Logger
}

type noteResponse struct {
	Note *domain.Note `json:"note"`
}

type notesResponse struct {
	Notes []domain.Note `json:"notes"`
}

func NewNoteHandler(noteService *service.NoteService, logger slog.Logger) *NoteHandler {
	return &NoteHandler{
		noteService: noteService,
		logger:      logger.Named("http.notes"),
	}
}

func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	var in domain.ContentInput
	if !decodeJSON(w, r, &in) {
		return
	}

	note, err := h.noteService.CreateNote(r.Context(), userID, in)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Note: note})
}

func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}

	notes, err := h.noteService.ListNotes(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, notesResponse{Notes: notes})
}

func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	note, err := h.noteService.GetNote(r.Context(), userID, id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Note: note})
}

func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var in domain.ContentInput
	if !decodeJSON(w, r, &in) {
		return
	}

	note, err := h.noteService.UpdateNote(r.Context(), userID, id, in)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Note: note})
}

func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if err := h.noteService.DeleteNote(r.Context(), userID, id); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Note deleted successfully"})
}

type TextHandler struct {
	textService *service.TextService
	logger      slog.Logger
}

type textResponse struct {
	Text *domain.Text `json:"text"`
}

type textsResponse struct {
	Texts []domain.Text `json:"texts"`
}

func NewTextHandler(textService *service.TextService, logger slog.Logger) *TextHandler {
	return &TextHandler{
		textService: textService,
		logger:      logger.Named("http.texts"),
	}
}

func (h *TextHandler) CreateText(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	var in domain.ContentInput
	if !decodeJSON(w, r, &in) {
		return
	}

	text, err := h.textService.CreateText(r.Context(), userID, in)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

func (h *TextHandler) ListTexts(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}

	texts, err := h.textService.ListTexts(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, textsResponse{Texts: texts})
}

func (h *TextHandler) GetText(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	text, err := h.textService.GetText(r.Context(), userID, id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

func (h *TextHandler) UpdateText(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var in domain.ContentInput
	if !decodeJSON(w, r, &in) {
		return
	}

	text, err := h.textService.UpdateText(r.Context(), userID, id, in)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

func (h *TextHandler) DeleteText(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if err := h.textService.DeleteText(r.Context(), userID, id); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Text deleted successfully"})
}
