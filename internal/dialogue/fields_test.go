package dialogue

import (
	"testing"
	"time"
)

func TestParseBirthDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"25/03/1990", "1990-03-25", false},
		{"1990-03-25", "1990-03-25", false},
		{" 01/01/2000 ", "2000-01-01", false},
		{"31/02/1990", "", true},
		{"March 25th", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseBirthDate(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseBirthDate(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseBirthDate(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseRequestDateUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	got, err := parseRequestDate("03/03/2026", loc)
	if err != nil {
		t.Fatal(err)
	}
	if got.Location() != loc {
		t.Fatalf("location = %v, want %v", got.Location(), loc)
	}
	if got.Day() != 3 || got.Month() != time.March {
		t.Fatalf("date = %v", got)
	}
}

func TestParseYesNo(t *testing.T) {
	for _, input := range []string{"yes", "Y", "Yeah", " yep "} {
		got, err := parseYesNo(input)
		if err != nil || got != "yes" {
			t.Errorf("parseYesNo(%q) = %q, %v", input, got, err)
		}
	}
	for _, input := range []string{"no", "N", "nope"} {
		got, err := parseYesNo(input)
		if err != nil || got != "no" {
			t.Errorf("parseYesNo(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := parseYesNo("perhaps"); err == nil {
		t.Error("parseYesNo should reject ambiguous answers")
	}
}

func TestMatchFieldName(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"name", FieldName, true},
		{"the birth date", FieldBirthDate, true},
		{"Service", FieldService, true},
		{"insurance", FieldInsurance, true},
		// Touches two labels; collection order breaks the tie the same
		// way every time.
		{"insurance name", FieldName, true},
		{"", "", false},
		{"something else entirely", "", false},
	}
	for _, tt := range tests {
		got, ok := matchFieldName(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("matchFieldName(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNotesSkip(t *testing.T) {
	m := newTestMachine(t, nil, nil)
	got, err := m.validateField(FieldNotes, "-")
	if err != nil || got != "" {
		t.Fatalf("notes skip = %q, %v", got, err)
	}
	got, err = m.validateField(FieldNotes, "allergic to lidocaine")
	if err != nil || got != "allergic to lidocaine" {
		t.Fatalf("notes = %q, %v", got, err)
	}
}
