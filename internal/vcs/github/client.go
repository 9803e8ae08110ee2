package github

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/go-github/v80/github"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/models"
	"github.com/thomas-vilte/leanreview/internal/retry"
	"github.com/thomas-vilte/leanreview/internal/vcs"
	"golang.org/x/oauth2"
)

var _ vcs.VCSClient = (*GitHubClient)(nil)

// MaxCommentLength is GitHub's limit for issue comment bodies, in characters.
const MaxCommentLength = 65536

// maxRetryAfter is the longest server-requested wait PostReview accepts
// before giving up on a rate limit.
const maxRetryAfter = 2 * time.Minute

const truncationMarker = "\n\n_… review truncated to fit GitHub's comment size limit._\n"

type PullRequestsService interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
	GetRaw(ctx context.Context, owner, repo string, number int, opts github.RawOptions) (string, *github.Response, error)
	ListFiles(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error)
}

type IssuesService interface {
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

type GitHubClient struct {
	prService     PullRequestsService
	issuesService IssuesService
	owner         string
	repo          string
	retryConfig   retry.Config
}

type Option func(*GitHubClient)

// WithRetryConfig sets the policy used by PostReview.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *GitHubClient) { c.retryConfig = cfg }
}

// NewGitHubClient authenticates with token. A non-empty apiURL other than
// the public API selects a GitHub Enterprise Server instance.
func NewGitHubClient(owner, repo, token, apiURL string, opts ...Option) (*GitHubClient, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)
	if apiURL != "" && strings.TrimRight(apiURL, "/") != "https://api.github.com" {
		var err error
		client, err = client.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, domainErrors.ErrInvalidConfig.
				WithError(err).
				WithContext("api_url", apiURL)
		}
	}

	return NewGitHubClientWithServices(client.PullRequests, client.Issues, owner, repo, opts...), nil
}

func NewGitHubClientWithServices(
	prService PullRequestsService,
	issuesService IssuesService,
	owner string,
	repo string,
	opts ...Option,
) *GitHubClient {
	c := &GitHubClient{
		prService:     prService,
		issuesService: issuesService,
		owner:         owner,
		repo:          repo,
		retryConfig:   retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (ghc *GitHubClient) GetPR(ctx context.Context, prNumber int) (models.PRData, error) {
	log := logger.FromContext(ctx)

	log.Debug("fetching github pull request",
		"owner", ghc.owner,
		"repo", ghc.repo,
		"pr_number", prNumber)

	pr, resp, err := ghc.prService.Get(ctx, ghc.owner, ghc.repo, prNumber)
	if err != nil {
		if appErr := ghc.statusError(resp, "get PR", prNumber); appErr != nil {
			return models.PRData{}, appErr.WithError(err)
		}
		log.Error("failed to fetch github PR",
			"error", err,
			"owner", ghc.owner,
			"repo", ghc.repo,
			"pr_number", prNumber)
		return models.PRData{}, fmt.Errorf("failed to get PR #%d: %w", prNumber, err)
	}

	diff, resp, err := ghc.prService.GetRaw(ctx, ghc.owner, ghc.repo, prNumber, github.RawOptions{Type: github.Diff})
	if err != nil {
		// 406: diff too large for the raw endpoint
		if resp != nil && resp.StatusCode == http.StatusNotAcceptable {
			log.Warn("PR diff too large, assembling it from file patches",
				"pr_number", prNumber)
			diff, err = ghc.getDiffFromFiles(ctx, prNumber)
			if err != nil {
				return models.PRData{}, fmt.Errorf("failed to get diff from files for PR #%d: %w", prNumber, err)
			}
		} else {
			if appErr := ghc.statusError(resp, "get PR diff", prNumber); appErr != nil {
				return models.PRData{}, appErr.WithError(err)
			}
			return models.PRData{}, fmt.Errorf("failed to get diff for PR #%d: %w", prNumber, err)
		}
	}

	prData := models.PRData{
		ID:          prNumber,
		Title:       pr.GetTitle(),
		Creator:     pr.GetUser().GetLogin(),
		Diff:        diff,
		BaseRef:     pr.GetBase().GetRef(),
		HeadRef:     pr.GetHead().GetRef(),
		HeadSHA:     pr.GetHead().GetSHA(),
		Description: pr.GetBody(),
	}

	log.Debug("github PR fetched successfully",
		"pr_number", prNumber,
		"title", prData.Title,
		"diff_size", len(diff))

	return prData, nil
}

func (ghc *GitHubClient) ListChangedFiles(ctx context.Context, prNumber int) ([]string, error) {
	files, err := ghc.listFiles(ctx, prNumber)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.GetFilename())
	}
	return paths, nil
}

func (ghc *GitHubClient) listFiles(ctx context.Context, prNumber int) ([]*github.CommitFile, error) {
	var all []*github.CommitFile
	opts := &github.ListOptions{PerPage: 100}
	for {
		files, resp, err := ghc.prService.ListFiles(ctx, ghc.owner, ghc.repo, prNumber, opts)
		if err != nil {
			if appErr := ghc.statusError(resp, "list PR files", prNumber); appErr != nil {
				return nil, appErr.WithError(err)
			}
			return nil, fmt.Errorf("failed to list files for PR #%d: %w", prNumber, err)
		}
		all = append(all, files...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// getDiffFromFiles rebuilds a unified diff from the per-file patches.
func (ghc *GitHubClient) getDiffFromFiles(ctx context.Context, prNumber int) (string, error) {
	files, err := ghc.listFiles(ctx, prNumber)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, f := range files {
		name := f.GetFilename()
		oldName := name
		if prev := f.GetPreviousFilename(); prev != "" {
			oldName = prev
		}

		fmt.Fprintf(&sb, "diff --git a/%s b/%s\n", oldName, name)
		if f.GetPatch() == "" {
			fmt.Fprintf(&sb, "Binary files a/%s and b/%s differ\n", oldName, name)
			continue
		}

		from, to := "a/"+oldName, "b/"+name
		switch f.GetStatus() {
		case "added":
			from = "/dev/null"
		case "removed":
			to = "/dev/null"
		}
		fmt.Fprintf(&sb, "--- %s\n+++ %s\n", from, to)
		sb.WriteString(f.GetPatch())
		if !strings.HasSuffix(f.GetPatch(), "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

// CreateComment posts one issue comment on the pull request.
func (ghc *GitHubClient) CreateComment(ctx context.Context, prNumber int, body string) (models.PostedComment, error) {
	body = TruncateComment(body)

	comment, resp, err := ghc.issuesService.CreateComment(ctx, ghc.owner, ghc.repo, prNumber, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		if appErr := rateLimitError(err, "create comment"); appErr != nil {
			return models.PostedComment{}, appErr
		}
		if appErr := ghc.statusError(resp, "create comment", prNumber); appErr != nil {
			return models.PostedComment{}, appErr.WithError(err)
		}
		return models.PostedComment{}, domainErrors.ErrCommentPost.
			WithError(err).
			WithContext("pr_number", prNumber)
	}

	return models.PostedComment{
		ID:  comment.GetID(),
		URL: comment.GetHTMLURL(),
	}, nil
}

// PostReview posts body, retrying rate limits, server errors and network
// failures. Authentication, permission, not-found and validation failures
// stop immediately.
func (ghc *GitHubClient) PostReview(ctx context.Context, prNumber int, body string) (models.PostedComment, error) {
	ctx = logger.With(ctx, "pr_number", prNumber)

	var posted models.PostedComment
	result := retry.Do(ctx, ghc.retryConfig, func(ctx context.Context) error {
		comment, err := ghc.CreateComment(ctx, prNumber, body)
		if err != nil {
			if isPermanent(err) {
				return retry.Permanent(err)
			}
			if wait, ok := retryAfter(err); ok {
				if wait > maxRetryAfter {
					return retry.Permanent(err)
				}
				return retry.After(err, wait)
			}
			return err
		}
		posted = comment
		return nil
	})

	if result.Err != nil {
		return models.PostedComment{}, domainErrors.ErrCommentPost.
			WithError(result.Err).
			WithContext("attempts", result.Attempts).
			WithContext("pr_number", prNumber)
	}

	posted.Attempts = result.Attempts
	logger.Info(ctx, "review comment posted",
		"url", posted.URL,
		"attempt", result.Attempts)
	return posted, nil
}

// TruncateComment shortens body to MaxCommentLength characters.
func TruncateComment(body string) string {
	if utf8.RuneCountInString(body) <= MaxCommentLength {
		return body
	}
	limit := MaxCommentLength - utf8.RuneCountInString(truncationMarker)
	runes := []rune(body)
	return string(runes[:limit]) + truncationMarker
}

func (ghc *GitHubClient) statusError(resp *github.Response, operation string, prNumber int) *domainErrors.AppError {
	if resp == nil || resp.Response == nil {
		return nil
	}

	repo := fmt.Sprintf("%s/%s", ghc.owner, ghc.repo)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return domainErrors.ErrGitHubTokenInvalid.
			WithContext("operation", operation).
			WithContext("status_code", resp.StatusCode)
	case http.StatusForbidden:
		if resp.Rate.Remaining == 0 && !resp.Rate.Reset.IsZero() {
			return domainErrors.ErrGitHubRateLimit.
				WithContext("operation", operation).
				WithContext("reset", resp.Rate.Reset.String())
		}
		return domainErrors.ErrGitHubInsufficientPerms.
			WithContext("operation", operation).
			WithContext("pr_number", prNumber).
			WithContext("repo", repo).
			WithContext("status_code", resp.StatusCode)
	case http.StatusNotFound:
		return domainErrors.ErrRepositoryNotFound.
			WithContext("operation", operation).
			WithContext("pr_number", prNumber).
			WithContext("repo", repo).
			WithContext("status_code", resp.StatusCode)
	case http.StatusTooManyRequests:
		return domainErrors.ErrGitHubRateLimit.
			WithContext("retry_after", parseRetryAfter(resp.Header.Get("Retry-After"))).
			WithContext("operation", operation)
	case http.StatusUnprocessableEntity:
		return domainErrors.ErrCommentPost.
			WithContext("operation", operation).
			WithContext("pr_number", prNumber).
			WithContext("status_code", resp.StatusCode)
	}

	if resp.StatusCode >= 500 {
		return domainErrors.NewAppError(domainErrors.TypeVCS, "GitHub server error", nil).
			WithContext("operation", operation).
			WithContext("status_code", resp.StatusCode)
	}
	return nil
}

// rateLimitError maps go-github's primary and secondary rate limit errors.
// Both arrive as 403 responses that would otherwise read as a permission
// problem.
func rateLimitError(err error, operation string) *domainErrors.AppError {
	var abuse *github.AbuseRateLimitError
	if stdErrors.As(err, &abuse) {
		var wait time.Duration
		if abuse.RetryAfter != nil {
			wait = *abuse.RetryAfter
		}
		return domainErrors.ErrGitHubRateLimit.
			WithError(err).
			WithContext("operation", operation).
			WithContext("limit", "secondary").
			WithContext("retry_after", wait)
	}

	var primary *github.RateLimitError
	if stdErrors.As(err, &primary) {
		wait := time.Until(primary.Rate.Reset.Time)
		if wait < 0 {
			wait = 0
		}
		return domainErrors.ErrGitHubRateLimit.
			WithError(err).
			WithContext("operation", operation).
			WithContext("limit", "primary").
			WithContext("reset", primary.Rate.Reset.String()).
			WithContext("retry_after", wait)
	}
	return nil
}

// retryAfter returns the wait requested by a rate limit error.
func retryAfter(err error) (time.Duration, bool) {
	var appErr *domainErrors.AppError
	if !stdErrors.As(err, &appErr) {
		return 0, false
	}
	wait, ok := appErr.Context["retry_after"].(time.Duration)
	return wait, ok
}

// parseRetryAfter reads the delay-seconds form of a Retry-After header.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// isPermanent reports whether retrying err cannot succeed.
func isPermanent(err error) bool {
	if stdErrors.Is(err, domainErrors.ErrGitHubTokenInvalid) ||
		stdErrors.Is(err, domainErrors.ErrGitHubInsufficientPerms) ||
		stdErrors.Is(err, domainErrors.ErrRepositoryNotFound) {
		return true
	}

	var appErr *domainErrors.AppError
	if stdErrors.As(err, &appErr) {
		if code, ok := appErr.Context["status_code"].(int); ok && code == http.StatusUnprocessableEntity {
			return true
		}
	}
	return false
}
