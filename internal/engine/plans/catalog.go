// Package plans is the static plan catalog. Changing a flag or a number here
// is the only way plan semantics change; nothing else encodes plan rules.
package plans

const (
	Basic        = "basic"
	Professional = "professional"
	Enterprise   = "enterprise"
)

// Unlimited is the limit sentinel for "no cap".
const Unlimited = -1

// Feature names.
const (
	FeatureDocumentStorage  = "document_storage"
	FeatureTimeTracking     = "time_tracking"
	FeatureCalendar         = "calendar"
	FeatureBilling          = "billing"
	FeatureClientPortal     = "client_portal"
	FeatureAdvancedSearch   = "advanced_search"
	FeatureCaseComparison   = "case_comparison"
	FeatureAIInsights       = "ai_insights"
	FeatureDocumentAnalysis = "document_analysis"
	FeatureLegalResearch    = "legal_research"
	FeatureAPIAccess        = "api_access"
	FeatureCustomBranding   = "custom_branding"
)

// Limit names that are not monthly feature caps.
const (
	LimitUsers     = "users"
	LimitMatters   = "matters"
	LimitDocuments = "documents"
	LimitStorageMB = "storage_mb"
)

type Plan struct {
	Name     string          `json:"name"`
	Features map[string]bool `json:"features"`
	// Limits holds both fixed caps (users, storage) and monthly caps keyed by
	// feature name.
	Limits map[string]int `json:"limits"`
}

var catalog = map[string]Plan{
	Basic: {
		Name: Basic,
		Features: map[string]bool{
			FeatureDocumentStorage:  true,
			FeatureTimeTracking:     true,
			FeatureCalendar:         true,
			FeatureBilling:          true,
			FeatureClientPortal:     false,
			FeatureAdvancedSearch:   false,
			FeatureCaseComparison:   false,
			FeatureAIInsights:       false,
			FeatureDocumentAnalysis: false,
			FeatureLegalResearch:    false,
			FeatureAPIAccess:        false,
			FeatureCustomBranding:   false,
		},
		Limits: map[string]int{
			LimitUsers:     3,
			LimitMatters:   50,
			LimitDocuments: 500,
			LimitStorageMB: 5 * 1024,
		},
	},
	Professional: {
		Name: Professional,
		Features: map[string]bool{
			FeatureDocumentStorage:  true,
			FeatureTimeTracking:     true,
			FeatureCalendar:         true,
			FeatureBilling:          true,
			FeatureClientPortal:     true,
			FeatureAdvancedSearch:   true,
			FeatureCaseComparison:   true,
			FeatureAIInsights:       true,
			FeatureDocumentAnalysis: true,
			FeatureLegalResearch:    true,
			FeatureAPIAccess:        false,
			FeatureCustomBranding:   false,
		},
		Limits: map[string]int{
			LimitUsers:              25,
			LimitMatters:            1000,
			LimitDocuments:          10000,
			LimitStorageMB:          100 * 1024,
			FeatureCaseComparison:   25,
			FeatureAIInsights:       100,
			FeatureDocumentAnalysis: 200,
			FeatureLegalResearch:    500,
		},
	},
	Enterprise: {
		Name: Enterprise,
		Features: map[string]bool{
			FeatureDocumentStorage:  true,
			FeatureTimeTracking:     true,
			FeatureCalendar:         true,
			FeatureBilling:          true,
			FeatureClientPortal:     true,
			FeatureAdvancedSearch:   true,
			FeatureCaseComparison:   true,
			FeatureAIInsights:       true,
			FeatureDocumentAnalysis: true,
			FeatureLegalResearch:    true,
			FeatureAPIAccess:        true,
			FeatureCustomBranding:   true,
		},
		Limits: map[string]int{
			LimitUsers:              Unlimited,
			LimitMatters:            Unlimited,
			LimitDocuments:          Unlimited,
			LimitStorageMB:          Unlimited,
			FeatureCaseComparison:   Unlimited,
			FeatureAIInsights:       Unlimited,
			FeatureDocumentAnalysis: Unlimited,
			FeatureLegalResearch:    Unlimited,
		},
	},
}

// Get returns a copy of the named plan.
func Get(name string) (Plan, bool) {
	p, ok := catalog[name]
	if !ok {
		return Plan{}, false
	}
	out := Plan{
		Name:     p.Name,
		Features: make(map[string]bool, len(p.Features)),
		Limits:   make(map[string]int, len(p.Limits)),
	}
	for k, v := range p.Features {
		out.Features[k] = v
	}
	for k, v := range p.Limits {
		out.Limits[k] = v
	}
	return out, true
}

// Valid reports whether name is a catalog plan.
func Valid(name string) bool {
	_, ok := catalog[name]
	return ok
}

// Names returns the plans from cheapest to most capable.
func Names() []string {
	return []string{Basic, Professional, Enterprise}
}

// HasFeature is false for unknown plans and unknown features.
func HasFeature(plan, feature string) bool {
	return catalog[plan].Features[feature]
}

// GetLimit returns the plan's limit and whether one is defined.
func GetLimit(plan, limit string) (int, bool) {
	v, ok := catalog[plan].Limits[limit]
	return v, ok
}

// IsUnlimited reports whether v is the unlimited sentinel.
func IsUnlimited(v int) bool {
	return v == Unlimited
}

// Rank orders plans for upgrade/downgrade decisions; unknown plans rank lowest.
func Rank(plan string) int {
	for i, name := range Names() {
		if name == plan {
			return i
		}
	}
	return -1
}
