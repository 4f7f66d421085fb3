package models

// Verdict is what a content analyzer returns for one piece of media
type Verdict struct {
	SubjectType    SubjectType `json:"subjectType"`
	Score          float64     `json:"score"`
	Classification string      `json:"classification"`
	Flagged        bool        `json:"flagged"`
	Reasons        []string    `json:"reasons,omitempty"`
	Severity       Severity    `json:"severity,omitempty"`
}

// AnalysisResponse is returned by the analyze route. Flag is only set when
// the verdict caused a ContentFlag to be created.
type AnalysisResponse struct {
	Verdict Verdict      `json:"verdict"`
	Flag    *ContentFlag `json:"flag,omitempty"`
}
