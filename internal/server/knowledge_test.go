package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/loopback-hub/loopback/internal/knowledge"
)

func TestSearchKnowledgeRequiresQuery(t *testing.T) {
	h := &KnowledgeHandler{
		Index:      knowledge.NewIndex(t.TempDir(), log.New(io.Discard, "", 0)),
		MaxResults: 5,
		Logger:     log.New(io.Discard, "", 0),
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/search_knowledge", nil)
	rec := httptest.NewRecorder()

	err := h.search(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got %#v", err)
	}
}

func TestSearchKnowledgeReturnsHits(t *testing.T) {
	dir := t.TempDir()
	csv := "Category,Issue,Question,Resolution,Tags\nHardware,Printer jam,How do I clear a printer jam?,Open the tray and remove the stuck page.,printer\n"
	if err := os.WriteFile(filepath.Join(dir, "kb.csv"), []byte(csv), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	idx := knowledge.NewIndex(dir, log.New(io.Discard, "", 0))
	if err := idx.Reindex(); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	h := &KnowledgeHandler{Index: idx, MaxResults: 5, Logger: log.New(io.Discard, "", 0)}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/search_knowledge?query=printer+jam", nil)
	rec := httptest.NewRecorder()

	if err := h.search(e.NewContext(req, rec)); err != nil {
		t.Fatalf("search: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatalf("expected at least one hit")
	}
}
