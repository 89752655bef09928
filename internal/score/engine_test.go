package score

import (
	"reflect"
	"testing"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

var scoreNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(model.DefaultScoreWeights())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func samplePosting() model.UnifiedJobPosting {
	p := model.UnifiedJobPosting{
		ID:              "greenhouse:1",
		Title:           "Senior Backend Engineer",
		Description:     "Build Go services on Kubernetes with Postgres. " + longText(),
		Company:         model.Company{Name: "Acme", Website: "https://acme.example", Rating: 4.5},
		Location:        model.Location{City: "New York", State: "NY"},
		RemoteOption:    model.RemoteHybrid,
		ExperienceLevel: model.LevelSenior,
		Salary:          &model.Salary{Min: 150000, Max: 190000, Currency: "USD", Period: "year"},
		PostedAt:        scoreNow.Add(-12 * time.Hour),
		IsActive:        true,
	}
	p.Finalize()
	return p
}

func longText() string {
	s := ""
	for i := 0; i < 20; i++ {
		s += "You will design, build and operate ingestion pipelines at scale. "
	}
	return s
}

func sampleProfile() model.UserPreferenceProfile {
	return model.UserPreferenceProfile{
		DesiredTitles:    []string{"Backend Engineer", "Platform Engineer"},
		Skills:           []string{"Go", "Kubernetes", "Postgres", "Rust"},
		YearsExperience:  7,
		SalaryMin:        140000,
		SalaryMax:        200000,
		Locations:        []string{"new york"},
		RemotePreference: model.RemoteHybrid,
	}
}

func TestScore_IsPure(t *testing.T) {
	e := testEngine(t)
	p, prof := samplePosting(), sampleProfile()

	a := e.Score(p, prof, scoreNow)
	b := e.Score(p, prof, scoreNow)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical inputs must yield identical output")
	}
}

func TestScore_OverallWithinBounds(t *testing.T) {
	e := testEngine(t)
	postings := []model.UnifiedJobPosting{
		samplePosting(),
		{}, // zero posting
		{Title: "CEO", ExperienceLevel: model.LevelExecutive},
	}
	profiles := []model.UserPreferenceProfile{
		sampleProfile(),
		{}, // empty profile
		{YearsExperience: 50, ExcludeKeywords: []string{"ceo"}},
	}
	for _, p := range postings {
		for _, prof := range profiles {
			s := e.Score(p, prof, scoreNow)
			if s.Overall < 0 || s.Overall > 100 {
				t.Fatalf("overall %v out of [0,100]", s.Overall)
			}
		}
	}
}

func TestScore_GoodMatchScoresHigh(t *testing.T) {
	e := testEngine(t)
	s := e.Score(samplePosting(), sampleProfile(), scoreNow)
	if s.Overall < 75 {
		t.Fatalf("strong match scored %v, want >= 75: %v", s.Overall, s.Explanation)
	}
	if len(s.MatchedKeywords) == 0 {
		t.Fatal("expected matched keywords")
	}
	// Rust is not in the posting.
	found := false
	for _, m := range s.MissingSkills {
		if m == "Rust" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Rust in missing skills, got %v", s.MissingSkills)
	}
}

func TestScoreExperience_MidBandUnderqualified(t *testing.T) {
	// Mid band is 3–6 years; 2 years is 1 short: 100 - 1*20 = 80.
	p := model.UnifiedJobPosting{ExperienceLevel: model.LevelMid}
	prof := model.UserPreferenceProfile{YearsExperience: 2}
	if got := scoreExperience(p, prof); got != 80 {
		t.Fatalf("scoreExperience = %v, want 80", got)
	}
}

func TestScoreExperience_OverqualificationGentler(t *testing.T) {
	p := model.UnifiedJobPosting{ExperienceLevel: model.LevelMid}

	under := scoreExperience(p, model.UserPreferenceProfile{YearsExperience: 1}) // 2 under
	over := scoreExperience(p, model.UserPreferenceProfile{YearsExperience: 8})  // 2 over
	if under >= over {
		t.Fatalf("under-qualification (%v) must be penalized steeper than over (%v)", under, over)
	}
	if got := scoreExperience(p, model.UserPreferenceProfile{YearsExperience: 4}); got != 100 {
		t.Fatalf("in-band years = %v, want 100", got)
	}
}

func TestScoreSalary_NeutralWhenUnknown(t *testing.T) {
	p := model.UnifiedJobPosting{} // no salary
	if got := scoreSalary(p, sampleProfile()); got != neutralScore {
		t.Fatalf("missing salary = %v, want neutral %d", got, neutralScore)
	}
	p.Salary = &model.Salary{Min: 100, Max: 200}
	if got := scoreSalary(p, model.UserPreferenceProfile{}); got != neutralScore {
		t.Fatalf("missing profile band = %v, want neutral", got)
	}
}

func TestScoreSalary_Overlap(t *testing.T) {
	p := model.UnifiedJobPosting{Salary: &model.Salary{Min: 150000, Max: 200000}}
	prof := model.UserPreferenceProfile{SalaryMin: 100000, SalaryMax: 200000}
	// Overlap 150k–200k over a 100k band → 50.
	if got := scoreSalary(p, prof); got != 50 {
		t.Fatalf("overlap = %v, want 50", got)
	}

	disjoint := model.UserPreferenceProfile{SalaryMin: 300000, SalaryMax: 400000}
	if got := scoreSalary(p, disjoint); got != 0 {
		t.Fatalf("disjoint ranges = %v, want 0", got)
	}
}

func TestScoreFreshness_Steps(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{12 * time.Hour, 100},
		{2 * 24 * time.Hour, 90},
		{5 * 24 * time.Hour, 75},
		{10 * 24 * time.Hour, 60},
		{20 * 24 * time.Hour, 40},
		{45 * 24 * time.Hour, 25},
		{90 * 24 * time.Hour, 10},
	}
	for _, tc := range cases {
		p := model.UnifiedJobPosting{PostedAt: scoreNow.Add(-tc.age)}
		if got := scoreFreshness(p, scoreNow); got != tc.want {
			t.Errorf("age %v → %v, want %v", tc.age, got, tc.want)
		}
	}
}

func TestScore_ExcludedKeywordZeroes(t *testing.T) {
	e := testEngine(t)
	p := samplePosting()
	prof := sampleProfile()
	prof.ExcludeKeywords = []string{"kubernetes"}

	s := e.Score(p, prof, scoreNow)
	if s.Overall != 0 {
		t.Fatalf("excluded keyword must zero the score, got %v", s.Overall)
	}
}

func TestScore_RequiredKeywordCaps(t *testing.T) {
	e := testEngine(t)
	p := samplePosting()
	prof := sampleProfile()
	prof.RequireKeywords = []string{"blockchain"}

	s := e.Score(p, prof, scoreNow)
	if s.Overall > 40 {
		t.Fatalf("missing required keyword must cap at 40, got %v", s.Overall)
	}
}

func TestNewEngine_RejectsBadWeights(t *testing.T) {
	w := model.DefaultScoreWeights()
	w.Title = 0.5 // sum now 1.25
	if _, err := NewEngine(w); err == nil {
		t.Fatal("expected weight validation error")
	}
}
