package server

import (
	"context"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/summarize"
)

// Runner summarizes the configured document with the named strategy.
type Runner interface {
	Run(ctx context.Context, option string) (string, error)
}

// SummarizeServer is the strategy picker front end.
type SummarizeServer struct {
	*base
	runner Runner
}

type summarizePage struct {
	Title      string
	Accept     string
	Staged     []string
	Strategies []summarize.Strategy
	Selected   string
	Summary    template.HTML
}

func NewSummarizeServer(addr, uploadDir, uploadGlob string, runner Runner) (*SummarizeServer, error) {
	b, err := newBase(addr, uploadDir, uploadGlob)
	if err != nil {
		return nil, err
	}
	s := &SummarizeServer{base: b, runner: runner}
	s.echo.GET("/", s.handleIndex)
	s.echo.POST("/upload", s.handleUpload)
	s.echo.POST("/summarize", s.handleSummarize)
	return s, nil
}

func (s *SummarizeServer) page() summarizePage {
	return summarizePage{
		Title:      "PDF Summarizer",
		Accept:     models.PDFMimeType,
		Staged:     s.staged(),
		Strategies: summarize.Strategies(),
	}
}

func (s *SummarizeServer) handleIndex(c echo.Context) error {
	return c.Render(http.StatusOK, "summarize.html", s.page())
}

func (s *SummarizeServer) handleUpload(c echo.Context) error {
	if err := s.stageUploads(c); err != nil {
		return failure(c, err)
	}
	return c.Render(http.StatusOK, "summarize.html", s.page())
}

func (s *SummarizeServer) handleSummarize(c echo.Context) error {
	option := c.FormValue("strategy")
	text, err := s.runner.Run(c.Request().Context(), option)
	if err != nil {
		return failure(c, err)
	}

	summary, err := helper.RenderMarkdown(text)
	if err != nil {
		return failure(c, err)
	}

	p := s.page()
	p.Selected = option
	p.Summary = summary
	return c.Render(http.StatusOK, "summarize.html", p)
}
