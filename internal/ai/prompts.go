package ai

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/thomas-vilte/leanreview/internal/models"
)

// ReviewSystemInstruction sets the reviewer persona.
const ReviewSystemInstruction = `You are a meticulous senior engineer specializing in formal verification. You review Lean 4 pull requests for misformalization: places where the formal statement or definition does not faithfully capture the mathematics or protocol it claims to formalize.`

// ReviewPromptData holds the parameters for the review template.
type ReviewPromptData struct {
	PRNumber           int
	PRTitle            string
	PRDescription      string
	Specification      string
	RepoContext        string
	ImpactContext      string
	ImpactFallback     bool
	ChangedFiles       []string
	Diff               string
	AdditionalComments string
	Errors             []string
	OutputLanguage     string
}

// RenderPrompt renders a prompt template with the provided data
func RenderPrompt(name, tmplStr string, data interface{}) (string, error) {
	tmpl, err := template.New(name).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("error parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("error executing template %s: %w", name, err)
	}

	return buf.String(), nil
}

const reviewPromptTemplate = `Your task is to rigorously review a pull request for misformalization issues. You have been given the following information:
1. The content of external reference documents, which contains the formal specification.
2. The full content of other relevant files from the repository, including every module that transitively imports a changed file.
3. The code changes ("diff") from the pull request that intends to implement the specification.
{{- if .AdditionalComments}}
4. Comments from the human reviewer who requested this review.
{{- end}}

# Pull Request #{{.PRNumber}}{{if .PRTitle}}: {{.PRTitle}}{{end}}
{{- if .PRDescription}}

{{.PRDescription}}
{{- end}}

**1. External Reference Documents (Specification):**
---
{{if .Specification}}{{.Specification}}{{else}}(no external references were provided){{end}}
---

**2. Additional Repository Context Files:**
---
{{if .RepoContext}}{{.RepoContext}}{{else}}(no repository files were requested){{end}}
{{- if .Errors}}

--- Errors Encountered During Context Fetching ---
{{range .Errors}}- {{.}}
{{end}}The review proceeds with partial context: treat the items above as unavailable.
{{- end}}
---

**3. Downstream Modules Affected by the Change:**
---
{{if .ImpactFallback}}The dependency graph could not be computed; only the changed files are known.
{{end -}}
Changed files:
{{range .ChangedFiles}}- {{.}}
{{end}}
{{- if .ImpactContext}}
{{.ImpactContext}}
{{- end}}
---

**4. Pull Request Diff:**
---
{{.Diff}}
---
{{- if .AdditionalComments}}

**5. Additional Reviewer Comments:**
---
{{.AdditionalComments}}
---
{{- end}}

**Your Instructions:**
Follow these steps precisely to conduct your review:
1. **Summarize Goal:** In a single sentence, state the primary goal of this pull request based on the provided context.
2. **Identify Specification:** Quote the specific section(s) from the "External Reference Documents" that the PR is attempting to formalize.
3. **Analyze Implementation:** Go through the "Pull Request Diff" hunk by hunk. For each change, analyze its logic and correctness. Explicitly map the code changes back to the specification you identified.
4. **Check for Misformalization:** Critically assess whether the code is a correct and complete formalization of the specification. Pay close attention to edge cases, logical inconsistencies, incorrect assumptions, or deviations from the formal model. Consider whether the downstream modules listed in section 3 still hold under the change.
5. **Provide Verdict:** State clearly whether the formalization is correct or incorrect.
6. **Actionable Feedback:** If the formalization is incorrect, provide a detailed explanation of the misformalization. Explain *why* it is wrong and illustrate your point with corrected code snippets. If the formalization is correct, state that and suggest any minor improvements if applicable.

Structure your review clearly using markdown for formatting.
{{- if .OutputLanguage}}
Write the review in {{.OutputLanguage}}.
{{- end}}
`

// BuildReviewPrompt renders the review prompt for a context bundle. The
// persona in ReviewSystemInstruction is sent separately as the system
// instruction.
func BuildReviewPrompt(bundle models.ContextBundle, lang string) (string, error) {
	return RenderPrompt("review", reviewPromptTemplate, PromptDataFromBundle(bundle, lang))
}

// PromptDataFromBundle flattens a bundle into template data. Reference and
// file contents are framed with start/end markers naming their source.
func PromptDataFromBundle(bundle models.ContextBundle, lang string) ReviewPromptData {
	var spec strings.Builder
	for _, ref := range bundle.SuccessfulReferences() {
		spec.WriteString(FrameContent(ref.URL, ref.Text, false))
	}

	requested := make(map[string]struct{}, len(bundle.RepoFiles))
	var repo strings.Builder
	for _, f := range bundle.RepoFiles {
		requested[f.Path] = struct{}{}
		repo.WriteString(FrameContent(f.Path, f.Content, f.Truncated))
	}

	var impact strings.Builder
	for _, f := range bundle.ImpactFiles {
		if _, dup := requested[f.Path]; dup {
			continue
		}
		impact.WriteString(FrameContent(f.Path, f.Content, f.Truncated))
	}

	errs := make([]string, 0, len(bundle.Errors))
	for _, ref := range bundle.FailedReferences() {
		errs = append(errs, fmt.Sprintf("Reference %s unavailable: %v", ref.URL, ref.Err))
	}
	errs = append(errs, bundle.Errors...)

	return ReviewPromptData{
		PRNumber:           bundle.PR.ID,
		PRTitle:            bundle.PR.Title,
		PRDescription:      strings.TrimSpace(bundle.PR.Description),
		Specification:      strings.TrimRight(spec.String(), "\n"),
		RepoContext:        strings.TrimRight(repo.String(), "\n"),
		ImpactContext:      strings.TrimRight(impact.String(), "\n"),
		ImpactFallback:     bundle.Impact.Fallback,
		ChangedFiles:       bundle.ChangeSet.Files(),
		Diff:               bundle.PR.Diff,
		AdditionalComments: strings.TrimSpace(bundle.AdditionalComments),
		Errors:             errs,
		OutputLanguage:     languageName(lang),
	}
}

// FrameContent wraps content in start/end markers naming its source.
func FrameContent(source, content string, truncated bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- Start of content from %s ---\n", source)
	sb.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		sb.WriteByte('\n')
	}
	if truncated {
		sb.WriteString("[... content truncated ...]\n")
	}
	fmt.Fprintf(&sb, "--- End of content from %s ---\n\n", source)
	return sb.String()
}

func languageName(lang string) string {
	switch lang {
	case "es":
		return "Spanish"
	default:
		return ""
	}
}
