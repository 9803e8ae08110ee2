package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/leanreview/internal/depgraph"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/thomas-vilte/leanreview/internal/impact"
	"github.com/thomas-vilte/leanreview/internal/lake"
	"github.com/thomas-vilte/leanreview/internal/models"
	"github.com/thomas-vilte/leanreview/internal/repofiles"
)

const diffA = `diff --git a/A.lean b/A.lean
index 1111111..2222222 100644
--- a/A.lean
+++ b/A.lean
@@ -1 +1 @@
-def a := 1
+def a := 2
`

type graphFunc func(ctx context.Context) (*depgraph.Graph, error)

func (f graphFunc) Graph(ctx context.Context) (*depgraph.Graph, error) { return f(ctx) }

func chainGraph(context.Context) (*depgraph.Graph, error) {
	g := depgraph.New()
	g.AddDependency("B", "A")
	g.AddDependency("C", "B")
	g.AddNode("D")
	return g, nil
}

type fixture struct {
	dir      string
	vcs      *MockVCSClient
	reviewer *MockReviewer
	fetcher  *MockReferenceFetcher
	trans    *i18n.Translations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"A.lean":          "def a := 2\n",
		"B.lean":          "import A\ndef b := a\n",
		"C.lean":          "import B\ntheorem c : b = 2 := rfl\n",
		"D.lean":          "def d := 0\n",
		"docs/notes.md":   "soundness notes\n",
		"docs/lemma42.md": "lemma 4.2\n",
	} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	trans, err := i18n.NewTranslations("en")
	require.NoError(t, err)

	reviewer := &MockReviewer{}
	reviewer.On("GetModelName").Return("gemini-test").Maybe()
	reviewer.On("GetProviderName").Return("gemini").Maybe()

	return &fixture{
		dir:      dir,
		vcs:      &MockVCSClient{},
		reviewer: reviewer,
		fetcher:  &MockReferenceFetcher{},
		trans:    trans,
	}
}

func (f *fixture) service(provider impact.GraphProvider, opts ...Option) *ReviewService {
	resolver := &impact.Resolver{Provider: provider, Mapper: lake.ModuleMapper{}}
	reader := &repofiles.Reader{Root: f.dir, MaxFileBytes: 1 << 20}
	return NewReviewService(f.vcs, f.reviewer, resolver, reader, f.fetcher, f.trans, opts...)
}

func TestReviewService_Run(t *testing.T) {
	t.Run("should include transitive dependents and post the review", func(t *testing.T) {
		f := newFixture(t)
		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{ID: 42, Title: "Bump a", Diff: diffA}, nil).Once()

		var prompt string
		f.reviewer.On("Review", mock.Anything, mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) { prompt = args.String(1) }).
			Return(models.ReviewResult{Text: "No misformalization found."}, nil).Once()

		f.vcs.On("PostReview", mock.Anything, 42, mock.MatchedBy(func(body string) bool {
			return strings.Contains(body, "No misformalization found.") &&
				strings.Contains(body, "Impacted files: 3")
		})).Return(models.PostedComment{ID: 1, URL: "https://github.com/o/r/pull/42#issuecomment-1", Attempts: 1}, nil).Once()

		outcome, err := f.service(graphFunc(chainGraph)).Run(context.Background(), models.ReviewRequest{PRNumber: 42})

		require.NoError(t, err)
		assert.Equal(t, []string{"A.lean", "B.lean", "C.lean"}, outcome.Impact.Files)
		assert.False(t, outcome.Impact.Fallback)
		require.NotNil(t, outcome.Comment)
		assert.Equal(t, int64(1), outcome.Comment.ID)
		assert.Equal(t, "gemini-test", outcome.Review.Model)

		assert.Contains(t, prompt, "--- Start of content from B.lean ---")
		assert.Contains(t, prompt, "theorem c : b = 2 := rfl")
		assert.NotContains(t, prompt, "def d := 0")
		assert.Contains(t, prompt, "+def a := 2")

		f.vcs.AssertExpectations(t)
		f.reviewer.AssertExpectations(t)
		f.fetcher.AssertNotCalled(t, "FetchAll", mock.Anything, mock.Anything)
	})

	t.Run("should fall back to the change set when the graph is unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{ID: 42, Diff: diffA}, nil).Once()
		f.reviewer.On("Review", mock.Anything, mock.Anything).Return(models.ReviewResult{Text: "ok"}, nil).Once()
		f.vcs.On("PostReview", mock.Anything, 42, mock.MatchedBy(func(body string) bool {
			return strings.Contains(body, "Dependency graph unavailable")
		})).Return(models.PostedComment{ID: 2}, nil).Once()

		broken := graphFunc(func(context.Context) (*depgraph.Graph, error) {
			return nil, domainErrors.ErrGraphExport.WithContext("stderr", "unknown executable")
		})

		outcome, err := f.service(broken).Run(context.Background(), models.ReviewRequest{PRNumber: 42})

		require.NoError(t, err)
		assert.Equal(t, []string{"A.lean"}, outcome.Impact.Files)
		assert.True(t, outcome.Impact.Fallback)
		f.vcs.AssertExpectations(t)
	})

	t.Run("should record unavailable references and keep going", func(t *testing.T) {
		f := newFixture(t)
		refs := []string{"https://ok.example/spec", "https://bad.example/paper.pdf"}
		f.vcs.On("GetPR", mock.Anything, 7).Return(models.PRData{ID: 7, Diff: diffA}, nil).Once()
		f.fetcher.On("FetchAll", mock.Anything, refs).Return([]models.Reference{
			{URL: refs[0], Text: "The protocol is sound."},
			{URL: refs[1], Err: domainErrors.ErrReferenceUnreachable.WithContext("status", 404)},
		}).Once()

		var prompt string
		f.reviewer.On("Review", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { prompt = args.String(1) }).
			Return(models.ReviewResult{Text: "ok"}, nil).Once()

		var body string
		f.vcs.On("PostReview", mock.Anything, 7, mock.Anything).
			Run(func(args mock.Arguments) { body = args.String(2) }).
			Return(models.PostedComment{ID: 3}, nil).Once()

		_, err := f.service(nil).Run(context.Background(), models.ReviewRequest{
			PRNumber:     7,
			ExternalRefs: refs,
			InternalRefs: []string{"docs", "missing.lean"},
		})

		require.NoError(t, err)
		assert.Contains(t, prompt, "--- Start of content from https://ok.example/spec ---")
		assert.Contains(t, prompt, "The protocol is sound.")
		assert.Contains(t, prompt, "Reference https://bad.example/paper.pdf unavailable")
		assert.Contains(t, prompt, "--- Start of content from docs/lemma42.md ---")
		assert.Contains(t, prompt, "missing.lean")

		assert.Contains(t, body, "Reference URL unavailable: https://bad.example/paper.pdf")
		assert.Contains(t, body, "2 context sources could not be loaded:")
		f.fetcher.AssertExpectations(t)
	})

	t.Run("should fail on an empty diff", func(t *testing.T) {
		f := newFixture(t)
		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{ID: 42, Diff: "  \n"}, nil).Once()

		_, err := f.service(nil).Run(context.Background(), models.ReviewRequest{PRNumber: 42})

		assert.ErrorIs(t, err, domainErrors.ErrEmptyDiff)
		f.reviewer.AssertNotCalled(t, "Review", mock.Anything, mock.Anything)
	})

	t.Run("should fail when the PR cannot be fetched", func(t *testing.T) {
		f := newFixture(t)
		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{}, domainErrors.ErrRepositoryNotFound).Once()

		_, err := f.service(nil).Run(context.Background(), models.ReviewRequest{PRNumber: 42})

		assert.ErrorIs(t, err, domainErrors.ErrRepositoryNotFound)
	})

	t.Run("should fail without posting when the model fails", func(t *testing.T) {
		f := newFixture(t)
		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{ID: 42, Diff: diffA}, nil).Once()
		f.reviewer.On("Review", mock.Anything, mock.Anything).
			Return(models.ReviewResult{}, domainErrors.ErrGeminiQuotaExceeded).Once()

		_, err := f.service(nil).Run(context.Background(), models.ReviewRequest{PRNumber: 42})

		assert.ErrorIs(t, err, domainErrors.ErrGeminiQuotaExceeded)
		f.vcs.AssertNotCalled(t, "PostReview", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("should fail when posting fails", func(t *testing.T) {
		f := newFixture(t)
		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{ID: 42, Diff: diffA}, nil).Once()
		f.reviewer.On("Review", mock.Anything, mock.Anything).Return(models.ReviewResult{Text: "ok"}, nil).Once()
		f.vcs.On("PostReview", mock.Anything, 42, mock.Anything).
			Return(models.PostedComment{}, domainErrors.ErrCommentPost.WithContext("attempts", 3)).Once()

		outcome, err := f.service(nil).Run(context.Background(), models.ReviewRequest{PRNumber: 42})

		assert.ErrorIs(t, err, domainErrors.ErrCommentPost)
		assert.Nil(t, outcome.Comment)
		assert.NotEmpty(t, outcome.Body)
	})

	t.Run("should write outputs and skip posting on dry run", func(t *testing.T) {
		f := newFixture(t)
		out := filepath.Join(t.TempDir(), "review.md")
		summary := filepath.Join(t.TempDir(), "summary.md")
		require.NoError(t, os.WriteFile(summary, []byte("previous step\n"), 0o644))

		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{ID: 42, Diff: diffA}, nil).Once()
		f.reviewer.On("Review", mock.Anything, mock.Anything).Return(models.ReviewResult{Text: "dry review"}, nil).Once()

		outcome, err := f.service(nil, WithOutputFile(out), WithStepSummary(summary)).
			Run(context.Background(), models.ReviewRequest{PRNumber: 42, DryRun: true})

		require.NoError(t, err)
		assert.Nil(t, outcome.Comment)
		f.vcs.AssertNotCalled(t, "PostReview", mock.Anything, mock.Anything, mock.Anything)

		written, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, outcome.Body, string(written))

		appended, err := os.ReadFile(summary)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(appended), "previous step\n"))
		assert.Contains(t, string(appended), "dry review")
	})

	t.Run("should list changed files when the diff cannot be parsed", func(t *testing.T) {
		f := newFixture(t)
		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{ID: 42, Diff: "not a unified diff"}, nil).Once()
		f.vcs.On("ListChangedFiles", mock.Anything, 42).Return([]string{"A.lean"}, nil).Once()
		f.reviewer.On("Review", mock.Anything, mock.Anything).Return(models.ReviewResult{Text: "ok"}, nil).Once()
		f.vcs.On("PostReview", mock.Anything, 42, mock.Anything).Return(models.PostedComment{ID: 4}, nil).Once()

		outcome, err := f.service(graphFunc(chainGraph)).Run(context.Background(), models.ReviewRequest{PRNumber: 42})

		require.NoError(t, err)
		assert.Equal(t, []string{"A.lean", "B.lean", "C.lean"}, outcome.Impact.Files)
		f.vcs.AssertExpectations(t)
	})

	t.Run("should cap the impact files read", func(t *testing.T) {
		f := newFixture(t)
		f.vcs.On("GetPR", mock.Anything, 42).Return(models.PRData{ID: 42, Diff: diffA}, nil).Once()

		var prompt string
		f.reviewer.On("Review", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { prompt = args.String(1) }).
			Return(models.ReviewResult{Text: "ok"}, nil).Once()
		f.vcs.On("PostReview", mock.Anything, 42, mock.Anything).Return(models.PostedComment{ID: 5}, nil).Once()

		_, err := f.service(graphFunc(chainGraph), WithMaxImpacted(2)).
			Run(context.Background(), models.ReviewRequest{PRNumber: 42})

		require.NoError(t, err)
		assert.Contains(t, prompt, "--- Start of content from A.lean ---")
		assert.Contains(t, prompt, "--- Start of content from B.lean ---")
		assert.NotContains(t, prompt, "--- Start of content from C.lean ---")
		assert.Contains(t, prompt, "Impact set truncated: 2 of 3 files included")
	})
}

func TestReviewService_RenderComment_Spanish(t *testing.T) {
	trans, err := i18n.NewTranslations("es")
	require.NoError(t, err)

	s := NewReviewService(nil, nil, nil, nil, nil, trans, WithLanguage("es"))
	body := s.renderComment(
		models.PRData{ID: 9},
		models.ReviewResult{Text: "  revisión  ", Model: "gemini-test"},
		models.ContextBundle{
			ChangeSet: models.NewChangeSet([]string{"A.lean"}),
			Impact:    models.ImpactInfo{Files: []string{"A.lean"}},
			Errors:    []string{"x"},
		},
	)

	assert.True(t, strings.HasPrefix(body, "## 🤖 Revisión de verificación formal"))
	assert.Contains(t, body, "\n\nrevisión\n\n---\n\n")
	assert.Contains(t, body, "1 fuente de contexto no pudo cargarse:\n- x\n")
	assert.Contains(t, body, "Archivos impactados: 1")
}
