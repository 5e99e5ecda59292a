package scraper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      string
		wantValue float64
	}{
		{name: "monthly rent", in: "1.100 €/mes", want: "1 100 €", wantValue: 1100},
		{name: "plain price", in: "950 €", want: "950 €", wantValue: 950},
		{name: "thousands and decimals", in: "1.234,25 €", want: "1 234 €", wantValue: 1234.25},
		{name: "large price", in: "1.250.000 €", want: "1 250 000 €", wantValue: 1250000},
		{name: "empty", in: "", want: "N/A", wantValue: 0},
		{name: "whitespace only", in: "   ", want: "N/A", wantValue: 0},
		{name: "unparsable kept as-is", in: "a consultar", want: "a consultar", wantValue: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotValue := ParsePrice(tt.in)
			if got != tt.want || gotValue != tt.wantValue {
				t.Errorf("ParsePrice(%q) = (%q, %v), want (%q, %v)",
					tt.in, got, gotValue, tt.want, tt.wantValue)
			}
		})
	}
}

func TestParseSearchPage(t *testing.T) {
	html := loadFixture(t, "search.html")

	got, err := ParseSearchPage(html, "https://www.idealista.com/alquiler-viviendas/barcelona/")
	if err != nil {
		t.Fatalf("ParseSearchPage: %v", err)
	}

	want := []Listing{
		{
			URL:         "https://www.idealista.com/inmueble/101/",
			Title:       "Piso en alquiler en Carrer de Mallorca",
			Price:       "1 100 €",
			PriceValue:  1100,
			Rooms:       "3 hab.",
			Size:        "85 m²",
			Floor:       "Planta 4ª exterior con ascensor",
			Description: "Amplio piso reformado junto a la Sagrada Familia.",
			Thumbnail:   "https://img1.example.com/thumbs/101.jpg",
		},
		{
			URL:         "https://www.idealista.com/inmueble/102/",
			Title:       "Atico en Gracia",
			Price:       "2 350 €",
			PriceValue:  2350,
			Rooms:       "2 hab.",
			Size:        "70 m²",
			Floor:       "N/A",
			Description: "Atico con terraza y vistas.",
			Thumbnail:   "https://img1.example.com/thumbs/102.jpg",
		},
		{
			URL:        "https://www.idealista.com/inmueble/104/",
			Title:      "Estudio centrico",
			Price:      "N/A",
			PriceValue: 0,
			Rooms:      "N/A",
			Size:       "N/A",
			Floor:      "N/A",
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseSearchPage mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSearchPageEmpty(t *testing.T) {
	got, err := ParseSearchPage("<html><body><p>no results</p></body></html>", "https://www.idealista.com/")
	if err != nil {
		t.Fatalf("ParseSearchPage: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no listings, got %d", len(got))
	}
}

func TestListingRecord(t *testing.T) {
	l := Listing{
		URL:        "https://www.idealista.com/inmueble/101/",
		Title:      "Piso en alquiler",
		Price:      "1 100 €",
		PriceValue: 1100,
		Rooms:      "3 hab.",
		Size:       "85 m²",
		Floor:      "Planta 4ª",
		Thumbnail:  "https://img1.example.com/thumbs/101.jpg",
	}

	rec := l.Record()
	if rec.IdealistaURL != l.URL || rec.Title != l.Title || rec.PriceValue != l.PriceValue {
		t.Errorf("Record() dropped fields: %+v", rec)
	}
	if rec.Stage != "" || rec.Source != "" {
		t.Errorf("Record() must leave stage and source unset, got stage=%q source=%q", rec.Stage, rec.Source)
	}
}
