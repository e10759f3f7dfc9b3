package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConsolidateMergesStructuredArticles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "db.csv", "Category,Issue,Question,Resolution,Tags\n"+
		"Network,VPN Setup,How do I connect to the VPN?,Install AnyConnect,VPN\n")
	writeFile(t, dir, "vpn_errors.txt", strings.Join([]string{
		"Category: Network",
		"Issue: VPN Error 0x80041002",
		"Question: VPN error code 0x80041002",
		"Resolution: Flush DNS and retry",
		"Tags: VPN;Error;DNS",
		"---",
		"Category: Network",
		"Issue: VPN MTU",
		"Question: VPN error 0x80070057",
		"Resolution: Lower MTU to 1300",
		"Tags: VPN;Error;MTU",
	}, "\n"))

	added, err := Consolidate(dir, "db.csv")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 added rows, got %d", added)
	}

	rows, err := readArticles(filepath.Join(dir, "db.csv"))
	if err != nil {
		t.Fatalf("readArticles: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(rows), rows)
	}
	if rows[1].Resolution != "Flush DNS and retry" {
		t.Fatalf("unexpected merged row: %+v", rows[1])
	}
}

func TestConsolidateDeduplicatesOnQuestion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "db.csv", "Category,Issue,Question,Resolution,Tags\n"+
		"Network,VPN,How do I connect to the VPN?,Install AnyConnect,VPN\n")
	writeFile(t, dir, "dup.txt", strings.Join([]string{
		"Question: how do i connect to the vpn?",
		"Resolution: duplicate guidance",
	}, "\n"))

	added, err := Consolidate(dir, "db.csv")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected no rows added for duplicate question, got %d", added)
	}
}

func TestConsolidatePlainTextBecomesGeneralEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "db.csv", "Category,Issue,Question,Resolution,Tags\n")
	writeFile(t, dir, "office_access.txt", "Badge in at the east entrance before 7pm.\nAfter hours call security.")

	added, err := Consolidate(dir, "db.csv")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 added row, got %d", added)
	}
	rows, err := readArticles(filepath.Join(dir, "db.csv"))
	if err != nil {
		t.Fatalf("readArticles: %v", err)
	}
	if rows[0].Category != "General" || rows[0].Issue != "office_access" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if !strings.Contains(rows[0].Resolution, "call security") {
		t.Fatalf("resolution lost content: %+v", rows[0])
	}
}

func TestConsolidateMissingCSVStartsFresh(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.txt", "Question: What is the guest wifi password?\nResolution: Ask reception.")

	added, err := Consolidate(dir, "db.csv")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 added row, got %d", added)
	}
	if _, err := os.Stat(filepath.Join(dir, "db.csv")); err != nil {
		t.Fatalf("csv not created: %v", err)
	}
}
