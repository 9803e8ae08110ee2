package git

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/thomas-vilte/leanreview/internal/errors"
)

// GitService runs git in Dir (the current directory when empty).
type GitService struct {
	Dir string
}

func NewGitService(dir string) *GitService {
	return &GitService{Dir: dir}
}

// DiffAgainst returns the diff of HEAD against the merge base with base.
func (s *GitService) DiffAgainst(ctx context.Context, base string) (string, error) {
	output, err := s.run(ctx, "diff", base+"...HEAD")
	if err != nil {
		return "", errors.ErrGetDiff.WithError(err).WithContext("base", base)
	}
	return output, nil
}

// ChangedFilesAgainst lists the paths changed on HEAD since the merge base with base.
func (s *GitService) ChangedFilesAgainst(ctx context.Context, base string) ([]string, error) {
	output, err := s.run(ctx, "diff", "--name-only", base+"...HEAD")
	if err != nil {
		return nil, errors.ErrGetChangedFiles.WithError(err).WithContext("base", base)
	}

	files := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		if path := strings.TrimSpace(line); path != "" {
			files = append(files, path)
		}
	}
	return files, nil
}

// GetRepoInfo returns owner, repository name and provider parsed from origin.
func (s *GitService) GetRepoInfo(ctx context.Context) (string, string, string, error) {
	output, err := s.run(ctx, "remote", "get-url", "origin")
	if err != nil {
		return "", "", "", errors.ErrGetRepoURL.WithError(err)
	}

	return parseRepoURL(strings.TrimSpace(output))
}

// RepoRoot gets the absolute path to the root of the git repository
func (s *GitService) RepoRoot(ctx context.Context) (string, error) {
	output, err := s.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("error getting repository root: %w", err)
	}
	return strings.TrimSpace(output), nil
}

func (s *GitService) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.Dir
	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%v: %s", err, msg)
		}
		return "", err
	}
	return string(output), nil
}

var (
	sshRegex   = regexp.MustCompile(`git@([^:]+):([^/]+)/(.+?)(?:\.git)?$`)
	httpsRegex = regexp.MustCompile(`https?://(?:[^@/]+@)?([^/]+)/([^/]+)/(.+?)(?:\.git)?$`)
)

func parseRepoURL(url string) (string, string, string, error) {
	var matches []string
	if sshRegex.MatchString(url) {
		matches = sshRegex.FindStringSubmatch(url)
	} else if httpsRegex.MatchString(url) {
		matches = httpsRegex.FindStringSubmatch(url)
	}

	if len(matches) >= 4 {
		provider := detectProvider(matches[1])
		repoName := strings.TrimSuffix(matches[3], ".git")
		return matches[2], repoName, provider, nil
	}

	return "", "", "", errors.ErrExtractRepoInfo.WithContext("url", url)
}

func detectProvider(host string) string {
	if strings.Contains(host, "github") {
		return "github"
	}
	if strings.Contains(host, "gitlab") {
		return "gitlab"
	}
	return "unknown"
}
