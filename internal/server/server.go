// Package server renders the two web front ends: question answering over
// uploaded PDFs and summarization of a fixed document.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

const uploadField = "files"

type templateRenderer struct {
	templates *template.Template
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// base carries the echo instance and the staging settings shared by both
// front ends.
type base struct {
	echo       *echo.Echo
	addr       string
	uploadDir  string
	uploadGlob string
}

func newBase(addr, uploadDir, uploadGlob string) (*base, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &templateRenderer{templates: tmpl}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			log.Info().
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("http request")
			return err
		}
	})

	b := &base{echo: e, addr: addr, uploadDir: uploadDir, uploadGlob: uploadGlob}
	e.GET("/health", b.handleHealth)
	return b, nil
}

func (b *base) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// stageUploads writes the files of the multipart field "files" to the
// staging directory. A request without files stages nothing.
func (b *base) stageUploads(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return echo.NewHTTPError(http.StatusBadRequest, "expected a multipart upload")
		}
		return err
	}
	files, err := upload.FromMultipart(form.File[uploadField])
	if err != nil {
		return err
	}
	_, err = upload.Stage(b.uploadDir, files)
	return err
}

// staged returns the base names of the staged files.
func (b *base) staged() []string {
	paths, err := upload.List(b.uploadDir, b.uploadGlob)
	if err != nil {
		log.Warn().Err(err).Msg("Error listing staged files")
		return nil
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}

// failure logs err and returns its raw text with status 500.
func failure(c echo.Context, err error) error {
	log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("Request failed")
	return c.String(http.StatusInternalServerError, err.Error())
}

func (b *base) Handler() http.Handler {
	return b.echo
}

// Start serves until Shutdown is called.
func (b *base) Start() error {
	log.Info().Str("addr", b.addr).Msg("Starting http server")
	err := b.echo.Start(b.addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (b *base) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down http server")
	return b.echo.Shutdown(ctx)
}
