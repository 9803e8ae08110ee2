package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/thomas-vilte/leanreview/internal/ai"
	"github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/git"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/thomas-vilte/leanreview/internal/impact"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/models"
	"github.com/thomas-vilte/leanreview/internal/vcs"
	"golang.org/x/sync/errgroup"
)

type (
	ImpactResolver interface {
		Resolve(ctx context.Context, changeSet models.ChangeSet) impact.Result
	}

	// ContextReader reads repository files for the prompt.
	ContextReader interface {
		Read(ctx context.Context, paths []string) ([]models.RepoFile, []error)
	}

	ReferenceFetcher interface {
		FetchAll(ctx context.Context, urls []string) []models.Reference
	}
)

type ReviewService struct {
	vcsClient vcs.VCSClient
	reviewer  ai.Reviewer
	resolver  ImpactResolver
	reader    ContextReader
	fetcher   ReferenceFetcher
	trans     *i18n.Translations

	lang        string
	maxImpacted int
	outputPath  string
	summaryPath string
}

type Option func(*ReviewService)

func WithLanguage(lang string) Option {
	return func(s *ReviewService) { s.lang = lang }
}

// WithMaxImpacted caps how many impact-set files are read, 0 disables it.
func WithMaxImpacted(n int) Option {
	return func(s *ReviewService) { s.maxImpacted = n }
}

// WithOutputFile writes the rendered comment to path.
func WithOutputFile(path string) Option {
	return func(s *ReviewService) { s.outputPath = path }
}

// WithStepSummary appends the rendered comment to the job summary file.
func WithStepSummary(path string) Option {
	return func(s *ReviewService) { s.summaryPath = path }
}

func NewReviewService(
	vcsClient vcs.VCSClient,
	reviewer ai.Reviewer,
	resolver ImpactResolver,
	reader ContextReader,
	fetcher ReferenceFetcher,
	trans *i18n.Translations,
	opts ...Option,
) *ReviewService {
	s := &ReviewService{
		vcsClient: vcsClient,
		reviewer:  reviewer,
		resolver:  resolver,
		reader:    reader,
		fetcher:   fetcher,
		trans:     trans,
		lang:      "en",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reviews one pull request. Failures to gather optional context are
// recorded in the prompt; failures to get the diff, call the model or post
// the comment are returned.
func (s *ReviewService) Run(ctx context.Context, req models.ReviewRequest) (models.ReviewOutcome, error) {
	ctx = logger.With(ctx, "pr_number", req.PRNumber)
	start := time.Now()

	logger.Info(ctx, "fetching pull request")
	pr, err := s.vcsClient.GetPR(ctx, req.PRNumber)
	if err != nil {
		logger.Error(ctx, "failed to fetch pull request", err)
		return models.ReviewOutcome{}, err
	}
	if strings.TrimSpace(pr.Diff) == "" {
		return models.ReviewOutcome{}, errors.ErrEmptyDiff.WithContext("pr_number", req.PRNumber)
	}

	changeSet, changeErrs := s.changeSet(ctx, req.PRNumber, pr.Diff)
	logger.Info(ctx, "change set built", "count", changeSet.Len())

	result := s.resolver.Resolve(ctx, changeSet)

	bundle := models.ContextBundle{
		PR:                 pr,
		ChangeSet:          changeSet,
		Impact:             result.Info(),
		AdditionalComments: req.AdditionalComments,
		Errors:             changeErrs,
	}
	s.gatherContext(ctx, req, result, &bundle)

	prompt, err := ai.BuildReviewPrompt(bundle, s.lang)
	if err != nil {
		return models.ReviewOutcome{}, errors.NewAppError(errors.TypeInternal, "failed to build review prompt", err)
	}

	if counter, ok := s.reviewer.(ai.TokenCounter); ok {
		if tokens, err := counter.CountTokens(ctx, prompt); err != nil {
			logger.Debug(ctx, "token count unavailable", "error", err)
		} else {
			logger.Info(ctx, "prompt ready", "tokens", tokens, "bytes", len(prompt))
		}
	}

	logger.Info(ctx, "requesting review", "model", s.reviewer.GetModelName())
	review, err := s.reviewer.Review(ctx, prompt)
	if err != nil {
		logger.Error(ctx, "model call failed", err, "provider", s.reviewer.GetProviderName())
		return models.ReviewOutcome{}, err
	}
	if review.Model == "" {
		review.Model = s.reviewer.GetModelName()
	}

	body := s.renderComment(pr, review, bundle)
	outcome := models.ReviewOutcome{
		Review: review,
		Body:   body,
		Impact: bundle.Impact,
	}

	if err := s.writeOutputs(ctx, body); err != nil {
		return outcome, err
	}

	if req.DryRun {
		logger.Info(ctx, s.trans.GetMessage("review_dry_run", 0, map[string]interface{}{
			"PRNumber": req.PRNumber,
		}))
		return outcome, nil
	}

	posted, err := s.vcsClient.PostReview(ctx, req.PRNumber, body)
	if err != nil {
		logger.Error(ctx, "failed to post review", err)
		return outcome, err
	}
	outcome.Comment = &posted

	logger.Info(ctx, "review completed",
		"url", posted.URL,
		"duration_ms", time.Since(start).Milliseconds())
	return outcome, nil
}

// changeSet parses the diff, asking the platform for the file list when the
// diff cannot be parsed.
func (s *ReviewService) changeSet(ctx context.Context, prNumber int, diff string) (models.ChangeSet, []string) {
	files, err := git.ParseChangedFiles(diff)
	if err == nil && len(files) > 0 {
		if stats, statErr := git.ParseStats(diff); statErr == nil {
			logger.Info(ctx, "parsed PR diff",
				"files", stats.Files,
				"added_lines", stats.Added,
				"removed_lines", stats.Removed)
		}
		return models.NewChangeSet(files), nil
	}
	if err != nil {
		logger.Warn(ctx, "could not parse PR diff, listing changed files instead", "error", err)
	}

	files, listErr := s.vcsClient.ListChangedFiles(ctx, prNumber)
	if listErr != nil {
		logger.Warn(ctx, "could not list changed files", "error", listErr)
		return models.NewChangeSet(nil), []string{fmt.Sprintf("Changed files unavailable: %v", listErr)}
	}
	return models.NewChangeSet(files), nil
}

// gatherContext reads impact-set files, operator paths and references
// concurrently. Partial failures land in bundle.Errors.
func (s *ReviewService) gatherContext(ctx context.Context, req models.ReviewRequest, result impact.Result, bundle *models.ContextBundle) {
	var (
		mu   sync.Mutex
		errs []string
	)
	record := func(msgs ...string) {
		mu.Lock()
		errs = append(errs, msgs...)
		mu.Unlock()
	}

	impactPaths := s.impactPaths(ctx, result, bundle.ChangeSet, record)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		files, readErrs := s.reader.Read(gctx, impactPaths)
		for _, err := range readErrs {
			logger.Debug(gctx, "impact file skipped", "error", err)
		}
		bundle.ImpactFiles = files
		return nil
	})

	if len(req.InternalRefs) > 0 {
		g.Go(func() error {
			files, readErrs := s.reader.Read(gctx, req.InternalRefs)
			msgs := make([]string, 0, len(readErrs))
			for _, err := range readErrs {
				logger.Warn(gctx, "repository context file unavailable", "error", err)
				msgs = append(msgs, err.Error())
			}
			record(msgs...)
			bundle.RepoFiles = files
			return nil
		})
	}

	if len(req.ExternalRefs) > 0 {
		g.Go(func() error {
			bundle.References = s.fetcher.FetchAll(gctx, req.ExternalRefs)
			return nil
		})
	}

	_ = g.Wait()

	bundle.Errors = append(bundle.Errors, errs...)
	logger.Info(ctx, "context gathered",
		"impact_files", len(bundle.ImpactFiles),
		"repo_files", len(bundle.RepoFiles),
		"references", len(bundle.SuccessfulReferences()),
		"errors", len(bundle.Errors)+len(bundle.FailedReferences()))
}

// impactPaths orders the impact set with changed files first and caps it at
// maxImpacted. Deleted files stay in the list; the reader skips them.
func (s *ReviewService) impactPaths(ctx context.Context, result impact.Result, changeSet models.ChangeSet, record func(...string)) []string {
	ordered := make([]string, 0, len(result.Files))
	var downstream []string
	for _, p := range result.Files {
		if changeSet.Contains(p) {
			ordered = append(ordered, p)
		} else {
			downstream = append(downstream, p)
		}
	}
	ordered = append(ordered, downstream...)

	if s.maxImpacted > 0 && len(ordered) > s.maxImpacted {
		logger.Warn(ctx, "impact set too large, truncating", "count", len(ordered), "limit", s.maxImpacted)
		record(fmt.Sprintf("Impact set truncated: %d of %d files included", s.maxImpacted, len(ordered)))
		ordered = ordered[:s.maxImpacted]
	}
	return ordered
}

func (s *ReviewService) renderComment(pr models.PRData, review models.ReviewResult, bundle models.ContextBundle) string {
	var sb strings.Builder

	sb.WriteString(s.trans.GetMessage("review_comment_header", 0, nil))
	sb.WriteString("\n\n")
	sb.WriteString(s.trans.GetMessage("review_comment_intro", 0, map[string]interface{}{
		"PRNumber": pr.ID,
		"Model":    review.Model,
	}))
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(review.Text))
	sb.WriteString("\n\n---\n\n")

	if bundle.Impact.Fallback {
		sb.WriteString(s.trans.GetMessage("review_comment_fallback", 0, map[string]interface{}{
			"Reason": bundle.Impact.Reason,
		}))
		sb.WriteString("\n\n")
	}

	failed := bundle.FailedReferences()
	if n := len(failed) + len(bundle.Errors); n > 0 {
		sb.WriteString(s.trans.GetMessage("context_errors_header", n, map[string]interface{}{
			"Count": n,
		}))
		sb.WriteString("\n")
		for _, ref := range failed {
			fmt.Fprintf(&sb, "- %s (%v)\n", s.trans.GetMessage("reference_unavailable", 0, map[string]interface{}{
				"URL": ref.URL,
			}), ref.Err)
		}
		for _, msg := range bundle.Errors {
			fmt.Fprintf(&sb, "- %s\n", msg)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(s.trans.GetMessage("review_comment_footer", 0, map[string]interface{}{
		"Model":    review.Model,
		"Changed":  bundle.ChangeSet.Len(),
		"Impacted": len(bundle.Impact.Files),
	}))
	sb.WriteString("\n")
	return sb.String()
}

func (s *ReviewService) writeOutputs(ctx context.Context, body string) error {
	if s.outputPath != "" {
		if err := os.WriteFile(s.outputPath, []byte(body), 0o644); err != nil {
			return errors.NewAppError(errors.TypeInternal, "failed to write review output", err).
				WithContext("path", s.outputPath)
		}
		logger.Info(ctx, "review written", "path", s.outputPath)
	}

	if s.summaryPath != "" {
		f, err := os.OpenFile(s.summaryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn(ctx, "could not open job summary", "error", err)
			return nil
		}
		defer f.Close()
		if _, err := f.WriteString(body + "\n"); err != nil {
			logger.Warn(ctx, "could not write job summary", "error", err)
		}
	}
	return nil
}
