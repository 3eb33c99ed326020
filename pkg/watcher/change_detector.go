package watcher

// ChangeAnalysis describes what changed and what has to happen before the
// next analysis run
type ChangeAnalysis struct {
	NeedConfigReload bool
	NeedAnalysis     bool
	ChangedFiles     []string
}

// AnalyzeChanges determines the work a batch of changes calls for
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{
		ChangedFiles: event.Paths,
	}

	switch event.Type {
	case ChangeTypeConfig:
		// Aliases, roots or severity rules may have changed
		analysis.NeedConfigReload = true
		analysis.NeedAnalysis = true

	case ChangeTypeSource:
		// The extraction cache keeps unchanged files cheap
		analysis.NeedAnalysis = true
	}

	return analysis
}

// Merge folds another analysis into a, for callers that drain several
// batches before acting
func (a *ChangeAnalysis) Merge(other *ChangeAnalysis) {
	a.NeedConfigReload = a.NeedConfigReload || other.NeedConfigReload
	a.NeedAnalysis = a.NeedAnalysis || other.NeedAnalysis
	a.ChangedFiles = append(a.ChangedFiles, other.ChangedFiles...)
}
