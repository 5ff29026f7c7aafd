package fares

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/HexSleeves/parley/internal/llm"
	"github.com/HexSleeves/parley/internal/tools"
)

var _ tools.PriceLookup = (*Store)(nil)

func TestOpenStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "fares.db")
	s, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("fares.db was not created")
	}
	if s.Path() != dbPath {
		t.Errorf("unexpected path %s", s.Path())
	}
}

func TestSeededPrices(t *testing.T) {
	s, err := OpenStore("")
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	tests := []struct {
		city   string
		want   string
		wantOK bool
	}{
		{"London", "$799", true},
		{"paris", "$899", true},
		{"  TOKYO ", "$1400", true},
		{"Atlantis", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.city, func(t *testing.T) {
			got, ok, err := s.Price(ctx, tt.city)
			if err != nil {
				t.Fatalf("Price failed: %v", err)
			}
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Price(%q) = %q, %v; want %q, %v", tt.city, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSetDeleteList(t *testing.T) {
	s, err := OpenStore("")
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "Berlin", "$650"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "london", "$749"); err != nil {
		t.Fatalf("Set (update) failed: %v", err)
	}
	if price, _, _ := s.Price(ctx, "LONDON"); price != "$749" {
		t.Errorf("expected updated london fare, got %s", price)
	}

	removed, err := s.Delete(ctx, "Paris")
	if err != nil || !removed {
		t.Fatalf("Delete paris = %v, %v", removed, err)
	}
	removed, err = s.Delete(ctx, "Paris")
	if err != nil || removed {
		t.Errorf("second Delete should report false, got %v, %v", removed, err)
	}

	fares, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"berlin", "london", "tokyo"}
	if len(fares) != len(want) {
		t.Fatalf("expected %d fares, got %d", len(want), len(fares))
	}
	for i, f := range fares {
		if f.City != want[i] {
			t.Errorf("fare %d: expected %s, got %s", i, want[i], f.City)
		}
		if f.UpdatedAt.IsZero() {
			t.Errorf("fare %s has no timestamp", f.City)
		}
	}

	if err := s.Set(ctx, " ", "$1"); err == nil {
		t.Error("expected empty city to fail")
	}
	if err := s.Set(ctx, "rome", ""); err == nil {
		t.Error("expected empty price to fail")
	}
}

func TestSeedOnlyOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fares.db")
	ctx := context.Background()

	s, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	if _, err := s.Delete(ctx, "london"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	s.Close()

	s, err = OpenStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	if _, ok, _ := s.Price(ctx, "london"); ok {
		t.Error("deleted default fare must not be reseeded")
	}
}

func TestStoreBacksTicketTool(t *testing.T) {
	s, err := OpenStore("")
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer s.Close()
	s.Set(context.Background(), "Lisbon", "$420")

	r := tools.NewDefaultRegistry(s, nil)
	if got := r.Invoke(context.Background(), tools.TicketPriceTool, llm.ObjectArguments(map[string]interface{}{"destinationCity": "lisbon"})); got != "$420" {
		t.Errorf("expected $420, got %s", got)
	}
}
