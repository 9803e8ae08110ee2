package models

type (
	// Reference is the outcome of fetching one operator-supplied URL.
	// Exactly one of Text or Err is meaningful.
	Reference struct {
		URL  string
		Text string
		Err  error
	}

	// RepoFile is a file read from the working copy for prompt context.
	RepoFile struct {
		Path      string
		Content   string
		Truncated bool
	}

	// ImpactInfo describes how the impact set was obtained.
	ImpactInfo struct {
		Files    []string
		Modules  []string
		Fallback bool
		Reason   string
	}

	// ContextBundle aggregates everything the review prompt is built from.
	// It is assembled once per run and consumed once by prompt construction.
	ContextBundle struct {
		PR                 PRData
		ChangeSet          ChangeSet
		Impact             ImpactInfo
		ImpactFiles        []RepoFile
		RepoFiles          []RepoFile
		References         []Reference
		AdditionalComments string
		Errors             []string
	}

	// ReviewResult is the opaque review text returned by the model.
	ReviewResult struct {
		Text  string
		Model string
		Usage *TokenUsage
	}

	// ReviewRequest carries the operator inputs of one run.
	ReviewRequest struct {
		PRNumber           int
		ExternalRefs       []string
		InternalRefs       []string
		AdditionalComments string
		DryRun             bool
	}

	// ReviewOutcome is what a run produced.
	ReviewOutcome struct {
		Review  ReviewResult
		Body    string
		Comment *PostedComment
		Impact  ImpactInfo
	}
)

// SuccessfulReferences returns the references that were fetched.
func (b ContextBundle) SuccessfulReferences() []Reference {
	var out []Reference
	for _, r := range b.References {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// FailedReferences returns the references that could not be fetched.
func (b ContextBundle) FailedReferences() []Reference {
	var out []Reference
	for _, r := range b.References {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
