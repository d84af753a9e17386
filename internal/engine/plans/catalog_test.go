package plans

import "testing"

func TestCatalog_AIFeatures(t *testing.T) {
	aiFeatures := []string{FeatureCaseComparison, FeatureAIInsights, FeatureDocumentAnalysis, FeatureLegalResearch}

	for _, f := range aiFeatures {
		if HasFeature(Basic, f) {
			t.Errorf("basic should not include %s", f)
		}
		if !HasFeature(Professional, f) {
			t.Errorf("professional should include %s", f)
		}
		limit, ok := GetLimit(Professional, f)
		if !ok || limit <= 0 {
			t.Errorf("professional should have a finite monthly cap on %s, got %d", f, limit)
		}
	}
}

func TestCatalog_EnterpriseUnlimited(t *testing.T) {
	p, ok := Get(Enterprise)
	if !ok {
		t.Fatal("enterprise plan missing")
	}
	for feature, enabled := range p.Features {
		if !enabled {
			t.Errorf("enterprise should enable %s", feature)
		}
	}
	for name, v := range p.Limits {
		if !IsUnlimited(v) {
			t.Errorf("enterprise limit %s should be unlimited, got %d", name, v)
		}
	}

	if v, _ := GetLimit(Enterprise, FeatureAIInsights); v != Unlimited {
		t.Errorf("expected -1, got %d", v)
	}
}

func TestCatalog_ProfessionalCaseComparison(t *testing.T) {
	v, ok := GetLimit(Professional, FeatureCaseComparison)
	if !ok || v != 25 {
		t.Errorf("expected 25, got %d (ok=%v)", v, ok)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	p, _ := Get(Basic)
	p.Features[FeatureCaseComparison] = true
	p.Limits[LimitUsers] = 1000

	if HasFeature(Basic, FeatureCaseComparison) {
		t.Error("mutating a returned plan must not change the catalog")
	}
	if v, _ := GetLimit(Basic, LimitUsers); v != 3 {
		t.Errorf("expected 3, got %d", v)
	}
}

func TestUnknownPlan(t *testing.T) {
	if Valid("platinum") {
		t.Error("platinum is not a plan")
	}
	if HasFeature("platinum", FeatureCalendar) {
		t.Error("unknown plan should have no features")
	}
	if Rank("platinum") != -1 || Rank(Enterprise) <= Rank(Basic) {
		t.Error("unexpected rank ordering")
	}
}
