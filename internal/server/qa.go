package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/rag"
)

// Answerer ingests the staged documents and answers a question about them.
type Answerer interface {
	Submit(ctx context.Context, question string) (*models.PromptResponse, error)
}

// QAServer is the upload-and-ask front end.
type QAServer struct {
	*base
	answerer Answerer
}

type qaPage struct {
	Title       string
	Accept      string
	Staged      []string
	Question    string
	Answer      template.HTML
	Source      string
	SourceLabel string
}

func NewQAServer(addr, uploadDir, uploadGlob string, answerer Answerer) (*QAServer, error) {
	b, err := newBase(addr, uploadDir, uploadGlob)
	if err != nil {
		return nil, err
	}
	s := &QAServer{base: b, answerer: answerer}
	s.echo.GET("/", s.handleIndex)
	s.echo.POST("/upload", s.handleUpload)
	s.echo.POST("/ask", s.handleAsk)
	return s, nil
}

func (s *QAServer) page() qaPage {
	return qaPage{Title: "Chat with PDF", Accept: models.PDFMimeType, Staged: s.staged()}
}

func (s *QAServer) handleIndex(c echo.Context) error {
	return c.Render(http.StatusOK, "qa.html", s.page())
}

func (s *QAServer) handleUpload(c echo.Context) error {
	if err := s.stageUploads(c); err != nil {
		return failure(c, err)
	}
	return c.Render(http.StatusOK, "qa.html", s.page())
}

func (s *QAServer) handleAsk(c echo.Context) error {
	question := c.FormValue("question")
	resp, err := s.answerer.Submit(c.Request().Context(), question)
	if errors.Is(err, rag.ErrEmptyQuery) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return failure(c, err)
	}

	answer, err := helper.RenderMarkdown(resp.Content)
	if err != nil {
		return failure(c, err)
	}

	p := s.page()
	p.Question = question
	p.Answer = answer
	p.Source = resp.Source
	p.SourceLabel = resp.SourceLabel()
	return c.Render(http.StatusOK, "qa.html", p)
}
