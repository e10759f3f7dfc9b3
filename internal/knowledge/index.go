package knowledge

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
)

// Entry is one indexed knowledge document: a csv row or a whole txt article.
type Entry struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// Hit is one search result returned to the API.
type Hit struct {
	Source  string  `json:"source"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Index is a rebuildable full-text index over the flat-file knowledge corpus
// (csv rows and txt articles under one directory). The in-memory bleve index
// is swapped wholesale on reindex so searches never see a partial corpus.
type Index struct {
	dir    string
	logger *log.Logger

	mu   sync.RWMutex
	idx  bleve.Index
	meta map[string]Entry
}

func NewIndex(dir string, logger *log.Logger) *Index {
	if logger == nil {
		logger = log.New(log.Writer(), "[KB] ", log.LstdFlags)
	}
	return &Index{dir: dir, logger: logger}
}

// Reindex rebuilds the index from the knowledge directory. Unreadable files
// are skipped with a log line.
func (x *Index) Reindex() error {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("bleve index: %w", err)
	}
	meta := make(map[string]Entry)

	files, err := os.ReadDir(x.dir)
	if err != nil {
		return fmt.Errorf("read knowledge dir: %w", err)
	}
	docs := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(x.dir, f.Name())
		var entries []Entry
		switch strings.ToLower(filepath.Ext(f.Name())) {
		case ".csv":
			entries, err = readCSVEntries(path, f.Name())
		case ".txt":
			entries, err = readTxtEntry(path, f.Name())
		default:
			continue
		}
		if err != nil {
			x.logger.Printf("skipping %s: %v", f.Name(), err)
			continue
		}
		for i, e := range entries {
			id := fmt.Sprintf("%s#%d", f.Name(), i)
			if err := idx.Index(id, e); err != nil {
				x.logger.Printf("index %s: %v", id, err)
				continue
			}
			meta[id] = e
			docs++
		}
	}

	x.mu.Lock()
	old := x.idx
	x.idx = idx
	x.meta = meta
	x.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	x.logger.Printf("indexed %d documents from %s", docs, x.dir)
	return nil
}

// Search runs a keyword query and returns up to k hits with source and
// snippet. An index that was never built returns no results rather than an
// error.
func (x *Index) Search(query string, k int) ([]Hit, error) {
	x.mu.RLock()
	idx := x.idx
	meta := x.meta
	x.mu.RUnlock()
	if idx == nil {
		return nil, nil
	}

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, k*3, 0, false)
	res, err := idx.Search(req)
	if err != nil {
		// Query-string parse errors degrade to a plain match query.
		req = bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k*3, 0, false)
		res, err = idx.Search(req)
		if err != nil {
			return nil, fmt.Errorf("knowledge search: %w", err)
		}
	}

	var out []Hit
	for _, hit := range res.Hits {
		e := meta[hit.ID]
		out = append(out, Hit{Source: e.Source, Title: e.Title, Content: snippet(e.Text), Score: hit.Score})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func readCSVEntries(path, name string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	header := records[0]
	var out []Entry
	for _, row := range records[1:] {
		var parts []string
		title := ""
		for i, v := range row {
			if v == "" {
				continue
			}
			if i < len(header) && (header[i] == "Issue" || header[i] == "Question") && title == "" {
				title = v
			}
			parts = append(parts, v)
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, Entry{Source: name, Title: title, Text: strings.Join(parts, " ")})
	}
	return out, nil
}

func readTxtEntry(path, name string) ([]Entry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, nil
	}
	return []Entry{{Source: name, Title: strings.TrimSuffix(name, filepath.Ext(name)), Text: text}}, nil
}

func snippet(s string) string {
	if len(s) <= 500 {
		return s
	}
	return s[:500]
}
