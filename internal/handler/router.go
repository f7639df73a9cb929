package handler

import (
	"net/http"
	"time"

	"cdr.dev/slog/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// Handlers все HTTP обработчики API
type Handlers struct {
	Files   *FileHandler
	Notes   *NoteHandler
	Texts   *TextHandler
	Profile *ProfileHandler
	Storage *StorageQuotaHandler
}

type RouterOptions struct {
	Logger slog.Logger
	// WriteRateLimit запросов в минуту на загрузку и создание с одного IP,
	// 0 отключает ограничение
	WriteRateLimit int
	RequestTimeout time.Duration
}

func NewRouter(h Handlers, opts RouterOptions) chi.Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Minute
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	writeLimit := func(next http.Handler) http.Handler { return next }
	if opts.WriteRateLimit > 0 {
		writeLimit = httprate.LimitByIP(opts.WriteRateLimit, time.Minute)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/", Health)

		r.Get("/storage/stats", h.Storage.GetStorageStats)
		r.Get("/storage/check", h.Storage.CheckSpace)
		r.Get("/analytics", h.Storage.GetAnalytics)

		r.Route("/files", func(r chi.Router) {
			r.With(writeLimit).Post("/upload", h.Files.UploadFile)
			r.Get("/", h.Files.ListFiles)
			r.Get("/download/{id}", h.Files.DownloadFile)
			r.Delete("/{id}", h.Files.DeleteFile)
		})

		r.Route("/notes", func(r chi.Router) {
			r.With(writeLimit).Post("/", h.Notes.CreateNote)
			r.Get("/", h.Notes.ListNotes)
			r.Get("/{id}", h.Notes.GetNote)
			r.Put("/{id}", h.Notes.UpdateNote)
			r.Delete("/{id}", h.Notes.DeleteNote)
		})

		r.Route("/texts", func(r chi.Router) {
			r.With(writeLimit).Post("/", h.Texts.CreateText)
			r.Get("/", h.Texts.ListTexts)
			r.Get("/{id}", h.Texts.GetText)
			r.Put("/{id}", h.Texts.UpdateText)
			r.Delete("/{id}", h.Texts.DeleteText)
		})

		r.Route("/user", func(r chi.Router) {
			r.Get("/profile", h.Profile.GetProfile)
			r.Put("/profile", h.Profile.UpdateProfile)
			r.Put("/settings", h.Profile.UpdateSettings)
		})
	})

	return r
}

func requestLogger(logger slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug(r.Context(), "request",
				slog.F("method", r.Method),
				slog.F("path", r.URL.Path),
				slog.F("status", ww.Status()),
				slog.F("bytes", ww.BytesWritten()),
				slog.F("duration", time.Since(start)),
				slog.F("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
