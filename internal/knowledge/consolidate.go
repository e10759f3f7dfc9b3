package knowledge

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var csvHeader = []string{"Category", "Issue", "Question", "Resolution", "Tags"}

// Article is one structured knowledge entry destined for the tabular store.
type Article struct {
	Category   string
	Issue      string
	Question   string
	Resolution string
	Tags       string
}

// Consolidate merges the txt articles in dir into the tabular csv store,
// deduplicating on the Question column, and returns the number of rows added.
// Txt files use "Field: value" lines ("Category", "Issue", "Question",
// "Resolution", "Tags") with entries separated by "---"; continuation lines
// are appended to the Resolution. Files without any field markers become a
// single General entry carrying the whole file as its resolution.
func Consolidate(dir, csvName string) (int, error) {
	csvPath := filepath.Join(dir, csvName)
	existing, err := readArticles(csvPath)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[strings.ToLower(strings.TrimSpace(a.Question))] = true
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read knowledge dir: %w", err)
	}
	added := 0
	for _, f := range files {
		if f.IsDir() || strings.ToLower(filepath.Ext(f.Name())) != ".txt" {
			continue
		}
		articles, err := parseTxtArticles(filepath.Join(dir, f.Name()))
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", f.Name(), err)
		}
		for _, a := range articles {
			key := strings.ToLower(strings.TrimSpace(a.Question))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			existing = append(existing, a)
			added++
		}
	}

	if added == 0 {
		return 0, nil
	}
	if err := writeArticles(csvPath, existing); err != nil {
		return 0, err
	}
	return added, nil
}

func readArticles(path string) ([]Article, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	var out []Article
	for i, row := range records {
		if i == 0 {
			continue
		}
		a := Article{}
		for j, v := range row {
			if j >= len(csvHeader) {
				break
			}
			switch csvHeader[j] {
			case "Category":
				a.Category = v
			case "Issue":
				a.Issue = v
			case "Question":
				a.Question = v
			case "Resolution":
				a.Resolution = v
			case "Tags":
				a.Tags = v
			}
		}
		if a.Question == "" && a.Resolution == "" {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func writeArticles(path string, articles []Article) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, a := range articles {
		if err := w.Write([]string{a.Category, a.Issue, a.Question, a.Resolution, a.Tags}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func parseTxtArticles(path string) ([]Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		out     []Article
		cur     Article
		started bool
	)
	flush := func() {
		if started && (cur.Question != "" || cur.Resolution != "") {
			if cur.Category == "" {
				cur.Category = "General"
			}
			out = append(out, cur)
		}
		cur = Article{}
		started = false
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var plain []string
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" {
			flush()
			continue
		}
		field, value, ok := splitField(trimmed)
		if !ok {
			if started && cur.Resolution != "" && trimmed != "" {
				cur.Resolution += "\n" + trimmed
			} else {
				plain = append(plain, line)
			}
			continue
		}
		started = true
		switch field {
		case "category":
			cur.Category = value
		case "issue":
			cur.Issue = value
		case "question":
			cur.Question = value
		case "resolution":
			cur.Resolution = value
		case "tags":
			cur.Tags = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	if len(out) == 0 {
		text := strings.TrimSpace(strings.Join(plain, "\n"))
		if text != "" {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			out = append(out, Article{
				Category:   "General",
				Issue:      name,
				Question:   name,
				Resolution: text,
			})
		}
	}
	return out, nil
}

func splitField(line string) (string, string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	field := strings.ToLower(strings.TrimSpace(line[:idx]))
	switch field {
	case "category", "issue", "question", "resolution", "tags":
		return field, strings.TrimSpace(line[idx+1:]), true
	}
	return "", "", false
}
