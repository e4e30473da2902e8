package domain

// Change types reported by the oracle. Unknown values collapse to
// ChangeTypeUnknown.
const (
	ChangeTypeFeature      = "feature"
	ChangeTypeBugfix       = "bugfix"
	ChangeTypeRefactor     = "refactor"
	ChangeTypeDocs         = "docs"
	ChangeTypeTest         = "test"
	ChangeTypeSecurity     = "security"
	ChangeTypePerformance  = "performance"
	ChangeTypeArchitecture = "architecture"
	ChangeTypeUnknown      = "unknown"
)

// Impact levels reported by the oracle. Unknown values collapse to
// ImpactMinor.
const (
	ImpactMajor = "major"
	ImpactMinor = "minor"
	ImpactPatch = "patch"
)

// Task priorities used in engineering task items.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

var validChangeTypes = map[string]bool{
	ChangeTypeFeature:      true,
	ChangeTypeBugfix:       true,
	ChangeTypeRefactor:     true,
	ChangeTypeDocs:         true,
	ChangeTypeTest:         true,
	ChangeTypeSecurity:     true,
	ChangeTypePerformance:  true,
	ChangeTypeArchitecture: true,
	ChangeTypeUnknown:      true,
}

var validImpactLevels = map[string]bool{
	ImpactMajor: true,
	ImpactMinor: true,
	ImpactPatch: true,
}

// NormaliseChangeType collapses unrecognised change types to unknown.
func NormaliseChangeType(t string) string {
	if validChangeTypes[t] {
		return t
	}
	return ChangeTypeUnknown
}

// NormaliseImpactLevel collapses unrecognised impact levels to minor.
func NormaliseImpactLevel(l string) string {
	if validImpactLevels[l] {
		return l
	}
	return ImpactMinor
}

// ClampConfidence forces a confidence value into [0,1]. The oracle reply is
// untrusted; values above 1 or below 0 leak through model formatting drift.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Overview is the top-level project description in a RepoAnalysis.
type Overview struct {
	ProjectName      string `json:"projectName"`
	Tagline          string `json:"tagline"`
	Description      string `json:"description"`
	ProblemStatement string `json:"problemStatement"`
}

// Scope describes what the project does and does not cover.
type Scope struct {
	InScope              []string `json:"inScope"`
	OutOfScope           []string `json:"outOfScope"`
	FutureConsiderations []string `json:"futureConsiderations"`
}

// ArchitectureLayer is one layer of the analysed architecture.
type ArchitectureLayer struct {
	Name         string   `json:"name"`
	Purpose      string   `json:"purpose"`
	Technologies []string `json:"technologies"`
}

// Architecture is the analysed architecture of a repository.
type Architecture struct {
	Pattern     string              `json:"pattern"`
	Description string              `json:"description"`
	Layers      []ArchitectureLayer `json:"layers"`
	DataFlow    string              `json:"dataFlow"`
	Frameworks  []string            `json:"frameworks"`
	Confidence  float64             `json:"confidence"`
}

// KeyConcept is one domain term with its definition.
type KeyConcept struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// CoreModule is one analysed module of the repository.
type CoreModule struct {
	Name             string   `json:"name"`
	Purpose          string   `json:"purpose"`
	Responsibilities []string `json:"responsibilities"`
	Location         string   `json:"location"`
	Dependencies     []string `json:"dependencies"`
	KeyFiles         []string `json:"keyFiles"`
	Confidence       float64  `json:"confidence"`
}

// TechnicalStack groups the detected technologies by concern.
type TechnicalStack struct {
	Frontend       []string `json:"frontend"`
	Backend        []string `json:"backend"`
	Database       []string `json:"database"`
	Infrastructure []string `json:"infrastructure"`
	Tooling        []string `json:"tooling"`
}

// ADRConsequences are the consequences section of an ADR.
type ADRConsequences struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
	Risks    []string `json:"risks"`
}

// InitialADR is the first architecture decision record seeded at
// materialisation.
type InitialADR struct {
	Title        string          `json:"title"`
	Context      string          `json:"context"`
	Decision     string          `json:"decision"`
	Consequences ADRConsequences `json:"consequences"`
}

// EngineeringTask is one suggested task from the analysis.
type EngineeringTask struct {
	Task      string `json:"task"`
	Priority  string `json:"priority"`
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

// RepoAnalysis is the structured oracle output for a whole repository.
type RepoAnalysis struct {
	Overview           Overview          `json:"overview"`
	Scope              Scope             `json:"scope"`
	Architecture       Architecture      `json:"architecture"`
	KeyConcepts        []KeyConcept      `json:"keyConcepts"`
	CoreModules        []CoreModule      `json:"coreModules"`
	PublicAPIs         []string          `json:"publicAPIs"`
	InternalInterfaces []string          `json:"internalInterfaces"`
	TechnicalStack     TechnicalStack    `json:"technicalStack"`
	OpenQuestions      []string          `json:"openQuestions"`
	InitialADR         InitialADR        `json:"initialADR"`
	EngineeringTasks   []EngineeringTask `json:"engineeringTasks"`
	Confidence         float64           `json:"confidence"`
}

// Normalise fills defaults and clamps untrusted values in place.
func (a *RepoAnalysis) Normalise() {
	if a.Overview.ProjectName == "" {
		a.Overview.ProjectName = "Unknown Project"
	}
	if a.Architecture.Pattern == "" {
		a.Architecture.Pattern = "Unknown"
	}
	a.Architecture.Confidence = ClampConfidence(a.Architecture.Confidence)
	for i := range a.CoreModules {
		a.CoreModules[i].Confidence = ClampConfidence(a.CoreModules[i].Confidence)
	}
	for i := range a.EngineeringTasks {
		switch a.EngineeringTasks[i].Priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			a.EngineeringTasks[i].Priority = PriorityMedium
		}
	}
	a.Confidence = ClampConfidence(a.Confidence)
}

// DegradedRepoAnalysis is the fallback used when the oracle fails during
// materialisation. Materialisation still proceeds with this skeleton.
func DegradedRepoAnalysis(projectName string) *RepoAnalysis {
	return &RepoAnalysis{
		Overview: Overview{
			ProjectName: projectName,
			Tagline:     "Analysis pending",
			Description: "Automated analysis was unavailable; this document was seeded with placeholders.",
		},
		Architecture: Architecture{
			Pattern:    "Unknown",
			Confidence: 0.3,
		},
		OpenQuestions: []string{
			"Automated analysis failed; re-run analysis to populate this document.",
		},
		InitialADR: InitialADR{
			Title:    "Adopt an engineering brain for this repository",
			Context:  "The repository was connected before a full analysis could be produced.",
			Decision: "Seed the document structure now and refine it on the next analysis.",
		},
		EngineeringTasks: []EngineeringTask{
			{
				Task:      "Re-run repository analysis",
				Priority:  PriorityHigh,
				Category:  "Documentation",
				Reasoning: "Initial automated analysis was unavailable.",
			},
		},
		Confidence: 0.3,
	}
}

// ChangeAnalysis is the per-pull-request oracle output.
type ChangeAnalysis struct {
	ChangeType           string   `json:"changeType"`
	ImpactLevel          string   `json:"impactLevel"`
	AffectedModules      []string `json:"affectedModules"`
	PublicAPIChanges     bool     `json:"publicAPIChanges"`
	BreakingChanges      bool     `json:"breakingChanges"`
	RequiresADR          bool     `json:"requiresADR"`
	Summary              string   `json:"summary"`
	DocumentationUpdates []string `json:"documentationUpdates"`
	FollowUpTasks        []string `json:"followUpTasks"`
	NewTechnologies      []string `json:"newTechnologies"`
	ArchitectureChanges  string   `json:"architectureChanges"`
	Confidence           float64  `json:"confidence"`
}

// Normalise fills defaults and clamps untrusted values in place.
func (a *ChangeAnalysis) Normalise() {
	a.ChangeType = NormaliseChangeType(a.ChangeType)
	a.ImpactLevel = NormaliseImpactLevel(a.ImpactLevel)
	a.Confidence = ClampConfidence(a.Confidence)
}

// ReleaseNoteWorthy reports whether this change earns a release-notes item.
func (a *ChangeAnalysis) ReleaseNoteWorthy() bool {
	return a.ImpactLevel == ImpactMajor ||
		a.BreakingChanges ||
		(a.ChangeType == ChangeTypeFeature && a.PublicAPIChanges)
}

// CommitSignificance is the oracle judgement over a batch of direct commits.
type CommitSignificance struct {
	IsSignificant  bool     `json:"isSignificant"`
	ChangeType     string   `json:"changeType"`
	ImpactLevel    string   `json:"impactLevel"`
	Summary        string   `json:"summary"`
	SuggestedTasks []string `json:"suggestedTasks"`
	Confidence     float64  `json:"confidence"`
}

// Normalise fills defaults and clamps untrusted values in place.
func (s *CommitSignificance) Normalise() {
	s.ChangeType = NormaliseChangeType(s.ChangeType)
	s.ImpactLevel = NormaliseImpactLevel(s.ImpactLevel)
	s.Confidence = ClampConfidence(s.Confidence)
}
