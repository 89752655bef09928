package model

import "testing"

func TestNormalizeTitle_ExpandsAbbreviations(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Senior SWE", "senior software engineer"},
		{"Sr. Software Engineer", "senior software engineer"},
		{"Jr Dev", "junior developer"},
		{"Staff Engineer (Platform)", "staff engineer platform"},
		{"VP, Engineering", "vice president engineering"},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeCompany_StripsSuffixes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme, Inc.", "acme"},
		{"Acme", "acme"},
		{"Globex Corp", "globex"},
	}
	for _, tc := range cases {
		if got := NormalizeCompany(tc.in); got != tc.want {
			t.Errorf("NormalizeCompany(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeLocation_ExpandsStates(t *testing.T) {
	a := NormalizeLocation(Location{City: "NY"})
	b := NormalizeLocation(Location{City: "New York"})
	if a != b {
		t.Errorf("expected %q == %q", a, b)
	}
}

func TestNormalizeURL_StripsTrackingParams(t *testing.T) {
	in := "https://Boards.Greenhouse.io/acme/jobs/123?utm_source=feed&gh_src=abc&t=1#apply"
	got := NormalizeURL(in)
	want := "https://boards.greenhouse.io/acme/jobs/123?t=1"
	if got != want {
		t.Errorf("NormalizeURL = %q, want %q", got, want)
	}
}

func TestDedupHash_PureAndNormalized(t *testing.T) {
	locA := Location{City: "NY", Country: "US"}
	locB := Location{City: "New York", Country: "USA"}

	h1 := DedupHash("Acme, Inc.", "Senior SWE", locA)
	h2 := DedupHash("Acme", "Sr. Software Engineer", locB)
	if h1 != h2 {
		t.Errorf("equivalent postings should hash identically: %s vs %s", h1, h2)
	}

	h3 := DedupHash("Acme", "Staff Engineer", locA)
	if h3 == h1 {
		t.Error("different titles should hash differently")
	}
}

func TestFinalize_RecomputesDerivedFields(t *testing.T) {
	p := UnifiedJobPosting{
		Title:    "Sr. SWE",
		Company:  Company{Name: "Acme"},
		Location: Location{City: "Remote"},
	}
	p.Finalize()
	if p.NormalizedTitle != "senior software engineer" {
		t.Errorf("NormalizedTitle = %q", p.NormalizedTitle)
	}
	before := p.DeduplicationHash

	p.Title = "Staff Engineer"
	p.Finalize()
	if p.DeduplicationHash == before {
		t.Error("hash must change when title changes")
	}
}
