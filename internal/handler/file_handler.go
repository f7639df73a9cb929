package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cdr.dev/slog/v3"

	"ecoleafdrive/internal/domain"
	"ecoleafdrive/internal/service"
)

const (
	// multipartMemory часть формы, которая держится в памяти, остальное на диске
	multipartMemory = 32 << 20
	// multipartOverhead запас на заголовки и границы multipart
	multipartOverhead = 1 << 20
)

type FileHandler struct {
	fileService *service.FileService
	logger      slog.Logger
}

type fileResponse struct {
	File *domain.File `json:"file"`
}

type filesResponse struct {
	Files []domain.File `json:"files"`
}

func NewFileHandler(fileService *service.FileService, logger slog.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		logger:      logger.Named("http.files"),
	}
}

// UploadFile принимает один файл в поле формы file
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}

	// Файл больше лимита хранилища не поместится ни при каком состоянии квоты
	r.Body = http.MaxBytesReader(w, r.Body, domain.StorageLimit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(r.Context(), w, h.logger, domain.ErrQuotaExceeded)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Failed to parse form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "No file uploaded"})
		return
	}
	defer file.Close()

	uploaded, err := h.fileService.UploadFile(r.Context(), domain.FileUpload{
		Name:     header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		OwnerID:  userID,
	}, file)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, fileResponse{File: uploaded})
}

func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}

	files, err := h.fileService.ListFiles(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, filesResponse{Files: files})
}

func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	fileID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	file, obj, err := h.fileService.DownloadFile(r.Context(), userID, fileID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	defer obj.Close()

	// Подготавливаем имя файла для Content-Disposition
	encodedFileName := url.PathEscape(file.Name)
	asciiName := strings.ReplaceAll(file.Name, `"`, `\"`)
	contentDisposition := fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiName, encodedFileName)

	contentType := obj.ContentType()
	if contentType == "" {
		contentType = file.MIMEType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength(), 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Warn(r.Context(), "download interrupted",
			slog.F("file_id", fileID),
			slog.Error(err),
		)
	}
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	fileID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if err := h.fileService.DeleteFile(r.Context(), userID, fileID); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "File deleted successfully"})
}
