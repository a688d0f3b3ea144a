// Package server is the thin HTTP shell around the pipeline: it renders the
// upload form, turns a multipart POST into a model.Submission, and renders
// the resulting Outcome.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dharsanguruparan/ScribeDrop/internal/config"
	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
	"github.com/dharsanguruparan/ScribeDrop/internal/model"
	"github.com/dharsanguruparan/ScribeDrop/internal/processing"
	"github.com/dharsanguruparan/ScribeDrop/internal/signing"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// multipartMemory is how much of a form ParseMultipartForm keeps in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

// formOverhead is extra body allowance for the non-file form fields.
const formOverhead = 1 << 20

// Runner executes one submission.
type Runner interface {
	Run(ctx context.Context, sub model.Submission) model.Outcome
}

// Language is one choice in the form's language picker.
type Language struct {
	Code string
	Name string
}

// Languages offered on the form.
var Languages = []Language{
	{"en-US", "English (US)"},
	{"en-GB", "English (UK)"},
	{"es-US", "Spanish (US)"},
	{"es-ES", "Spanish (Spain)"},
	{"fr-FR", "French"},
	{"de-DE", "German"},
	{"it-IT", "Italian"},
	{"pt-BR", "Portuguese (Brazil)"},
	{"ja-JP", "Japanese"},
	{"hi-IN", "Hindi"},
}

// Server hosts the HTTP handlers.
type Server struct {
	cfg     *config.Config
	runner  Runner
	limiter *processing.Limiter
	signer  *signing.Signer
	log     *log.Logger
}

// New wires the handlers to their collaborators.
func New(cfg *config.Config, runner Runner, limiter *processing.Limiter, signer *signing.Signer, logger *log.Logger) *Server {
	return &Server{
		cfg:     cfg,
		runner:  runner,
		limiter: limiter,
		signer:  signer,
		log:     logging.OrDefault(logger),
	}
}

// Serve runs the HTTP server until ctx is cancelled, then drains for up to
// five seconds.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.log.Info("listening", "addr", s.cfg.Address)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the routed, logged handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/", s.handleIndex)
	return s.loggingMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"status":"ok"}`)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.renderForm(w, http.StatusOK, "")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderResult(w, http.StatusRequestEntityTooLarge, resultPage{Error: "uploaded file is too large"})
			return
		}
		s.log.Warn("unreadable upload form", "err", err)
		s.renderForm(w, http.StatusBadRequest, "Missing form data. Please fill out all fields.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	if !s.signer.Validate(r.FormValue("token_nonce"), r.FormValue("token_expires"), r.FormValue("token_signature")) {
		s.renderForm(w, http.StatusForbidden, "This form has expired. Please try again.")
		return
	}

	sub, err := readSubmission(r)
	if err != nil {
		s.log.Error("read uploaded file", "err", err)
		s.renderResult(w, http.StatusInternalServerError, resultPage{Error: model.MsgStagingFailed})
		return
	}

	release, err := s.limiter.Acquire(r.Context())
	if err != nil {
		s.log.Warn("no free processing slot", "err", err)
		s.renderResult(w, http.StatusServiceUnavailable, resultPage{Error: "the service is busy, please try again later"})
		return
	}
	defer release()

	out := s.runner.Run(r.Context(), sub)
	if !out.OK() {
		if out.Err.Kind == model.KindValidation {
			s.renderForm(w, http.StatusBadRequest, "Missing form data. Please fill out all fields.")
			return
		}
		s.renderResult(w, statusFor(out.Err.Kind), resultPage{Error: out.Message()})
		return
	}
	s.renderResult(w, http.StatusOK, resultPage{Transcript: out.Transcript, Email: out.Email, Notified: out.Notified})
}

func readSubmission(r *http.Request) (model.Submission, error) {
	sub := model.Submission{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Language: strings.TrimSpace(r.FormValue("language")),
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return sub, nil
	}
	if err != nil {
		return sub, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return sub, err
	}
	sub.Data = data
	sub.Filename = header.Filename
	return sub, nil
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindStaging:
		return http.StatusInternalServerError
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

type formPage struct {
	Error     string
	Token     signing.Token
	Languages []Language
}

type resultPage struct {
	Transcript string
	Email      string
	Notified   bool
	Error      string
}

func (s *Server) renderForm(w http.ResponseWriter, status int, flash string) {
	s.render(w, status, "index.html", formPage{Error: flash, Token: s.signer.Issue(), Languages: Languages})
}

func (s *Server) renderResult(w http.ResponseWriter, status int, page resultPage) {
	s.render(w, status, "result.html", page)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render template", "template", name, "err", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
