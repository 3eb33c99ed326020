package model

import (
	"testing"
)

func TestNewCatalogAssignsSortedIDs(t *testing.T) {
	records := []*ModuleRecord{
		{AbsPath: "/w/src/b.ts", RelPath: "src/b.ts", Name: "b.ts", Ext: ".ts"},
		{AbsPath: "/w/src/a.ts", RelPath: "src/a.ts", Name: "a.ts", Ext: ".ts"},
		{AbsPath: "/w/app/page.tsx", RelPath: "app/page.tsx", Name: "page.tsx", Ext: ".tsx"},
	}

	c := NewCatalog("/w", records)

	want := []string{"app/page.tsx", "src/a.ts", "src/b.ts"}
	for i, rel := range want {
		rec := c.Get(int64(i))
		if rec == nil || rec.RelPath != rel {
			t.Fatalf("Get(%d) = %v, want %s", i, rec, rel)
		}
		id, ok := c.Lookup(rec.AbsPath)
		if !ok || id != int64(i) {
			t.Errorf("Lookup(%s) = %d, %v; want %d", rec.AbsPath, id, ok, i)
		}
	}

	if c.Get(3) != nil || c.Get(-1) != nil {
		t.Error("Get() out of range should return nil")
	}
}

func TestModuleRecordStem(t *testing.T) {
	rec := &ModuleRecord{Name: "layout.tsx", Ext: ".tsx"}
	if rec.Stem() != "layout" {
		t.Errorf("Stem() = %s, want layout", rec.Stem())
	}
}

func TestSeverityText(t *testing.T) {
	tests := []struct {
		name string
		want Severity
	}{
		{"low", SeverityLow},
		{"medium", SeverityMedium},
		{"high", SeverityHigh},
		{"critical", SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Severity
			if err := s.UnmarshalText([]byte(tt.name)); err != nil {
				t.Fatalf("UnmarshalText(%s) error = %v", tt.name, err)
			}
			if s != tt.want {
				t.Errorf("UnmarshalText(%s) = %v, want %v", tt.name, s, tt.want)
			}
			if s.String() != tt.name {
				t.Errorf("String() = %s, want %s", s.String(), tt.name)
			}
		})
	}

	if _, err := ParseSeverity("urgent"); err == nil {
		t.Error("ParseSeverity(urgent) should fail")
	}
}
