package knowledge

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestReindexAndSearch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "support.csv", "Category,Issue,Question,Resolution,Tags\n"+
		"Network,VPN Setup,How do I connect to the VPN?,Install AnyConnect and use SSO,VPN;Network\n"+
		"Hardware,Printer Jam,Printer is jammed,Open tray B and clear the jam,Printer\n")
	writeFile(t, dir, "wifi_guide.txt", "If wifi keeps dropping, forget the network and rejoin with your SSO password.")
	writeFile(t, dir, "notes.md", "ignored, not csv or txt")

	x := NewIndex(dir, log.New(io.Discard, "", 0))
	if err := x.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	hits, err := x.Search("printer jam", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected hits for printer jam")
	}
	if hits[0].Source != "support.csv" {
		t.Fatalf("expected csv hit first, got %+v", hits[0])
	}

	hits, err = x.Search("wifi dropping", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.Source == "wifi_guide.txt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected txt article in hits, got %+v", hits)
	}
}

func TestSearchCapsResults(t *testing.T) {
	dir := t.TempDir()
	csv := "Category,Issue,Question,Resolution,Tags\n"
	for i := 0; i < 10; i++ {
		csv += "Network,VPN,vpn question,vpn answer,VPN\n"
	}
	writeFile(t, dir, "support.csv", csv)

	x := NewIndex(dir, log.New(io.Discard, "", 0))
	if err := x.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	hits, err := x.Search("vpn", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) > 5 {
		t.Fatalf("expected at most 5 hits, got %d", len(hits))
	}
}

func TestSearchBeforeReindexReturnsNothing(t *testing.T) {
	x := NewIndex(t.TempDir(), log.New(io.Discard, "", 0))
	hits, err := x.Search("anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits != nil {
		t.Fatalf("expected no hits before first reindex, got %+v", hits)
	}
}
