package errors

import "fmt"

// ErrorType defines the category of the error
type ErrorType string

const (
	TypeConfiguration ErrorType = "CONFIGURATION"
	TypeAI            ErrorType = "AI"
	TypeVCS           ErrorType = "VCS"
	TypeGit           ErrorType = "GIT"
	TypeToolchain     ErrorType = "TOOLCHAIN"
	TypeReference     ErrorType = "REFERENCE"
	TypeInternal      ErrorType = "INTERNAL"
)

// AppError represents a domain-level error with a type and an underlying error
type AppError struct {
	Type       ErrorType
	Message    string
	Context    map[string]interface{}
	Err        error
	Suggestion string
}

func (e *AppError) Error() string {
	var msg string
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Type, e.Message)
	}

	if e.Context != nil {
		if stderr, ok := e.Context["stderr"].(string); ok && stderr != "" {
			msg += fmt.Sprintf(" - %s", stderr)
		}
	}

	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches errors of the same type and message, so copies made with the
// With* builders still satisfy errors.Is against the package sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithError creates a new AppError with an underlying error
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Type:       e.Type,
		Message:    e.Message,
		Context:    e.Context,
		Err:        err,
		Suggestion: e.Suggestion,
	}
}

// WithContext creates a new AppError with additional context
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	ctx := make(map[string]interface{})
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &AppError{
		Type:       e.Type,
		Message:    e.Message,
		Context:    ctx,
		Err:        e.Err,
		Suggestion: e.Suggestion,
	}
}

func (e *AppError) WithSuggestion(suggestion string) *AppError {
	return &AppError{
		Type:       e.Type,
		Message:    e.Message,
		Context:    e.Context,
		Err:        e.Err,
		Suggestion: suggestion,
	}
}

// NewAppError creates a new AppError
func NewAppError(t ErrorType, msg string, err error) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Err:     err,
	}
}

// Git errors
var (
	ErrGetDiff = NewAppError(TypeGit, "Failed to get diff", nil).
			WithSuggestion("Make sure the checkout has full history: actions/checkout with fetch-depth: 0")

	ErrParseDiff = NewAppError(TypeGit, "Failed to parse diff", nil)

	ErrGetChangedFiles = NewAppError(TypeGit, "Failed to get changed files", nil).
				WithSuggestion("Verify the base ref exists locally: git fetch origin <base>")

	ErrGetRepoURL = NewAppError(TypeGit, "Failed to get repository URL", nil).
			WithSuggestion("Add a remote: git remote add origin <url>")

	ErrExtractRepoInfo = NewAppError(TypeGit, "Failed to extract repository info", nil)
)

// Toolchain errors are recovered locally by falling back to the change set.
var (
	ErrGraphExport = NewAppError(TypeToolchain, "Dependency graph export failed", nil).
			WithSuggestion("Check that the project builds: lake build")

	ErrGraphParse = NewAppError(TypeToolchain, "Dependency graph output could not be parsed", nil).
			WithSuggestion("Check the exporter version or set graph_format in the config")

	ErrGraphTimeout = NewAppError(TypeToolchain, "Dependency graph export timed out", nil).
			WithSuggestion("Increase graph_timeout in the config")
)

// Reference errors are recorded per reference and never abort the run.
var (
	ErrReferenceUnreachable = NewAppError(TypeReference, "reference unreachable", nil).
				WithSuggestion("Check the URL is public and reachable from the CI runner")

	ErrUnsupportedContentType = NewAppError(TypeReference, "unsupported content type", nil).
					WithSuggestion("Only HTML, PDF and plain text references are supported")

	ErrReferenceParse = NewAppError(TypeReference, "reference content could not be extracted", nil)

	ErrRepoPathNotFound = NewAppError(TypeReference, "Could not find file or directory", nil)

	ErrRepoFileRead = NewAppError(TypeReference, "Error reading file", nil)

	ErrRepoPathOutsideRoot = NewAppError(TypeReference, "Path is outside the repository", nil).
				WithSuggestion("Use paths relative to the repository root without '..'")
)

// Configuration errors
var (
	ErrAPIKeyMissing = NewAppError(TypeConfiguration, "Gemini API key is missing", nil).
				WithSuggestion("Set the GEMINI_API_KEY environment variable or pass --gemini-api-key")

	ErrTokenMissing = NewAppError(TypeConfiguration, "GitHub token is missing", nil).
			WithSuggestion("Set the GITHUB_TOKEN environment variable or pass --github-token")

	ErrRepositoryMissing = NewAppError(TypeConfiguration, "Repository is missing", nil).
				WithSuggestion("Set GITHUB_REPOSITORY=owner/repo or pass --repo")

	ErrInvalidRepository = NewAppError(TypeConfiguration, "Repository must be in owner/repo form", nil)

	ErrPRNumberMissing = NewAppError(TypeConfiguration, "Pull request number is missing", nil).
				WithSuggestion("Pass --pr-number with the pull request to review")

	ErrInvalidConfig = NewAppError(TypeConfiguration, "Configuration is invalid", nil)
)

// VCS errors
var (
	ErrRepositoryNotFound = NewAppError(TypeVCS, "repository or pull request not found", nil).
				WithSuggestion("Check repository name, PR number and token access")

	ErrEmptyDiff = NewAppError(TypeVCS, "pull request diff is empty", nil)

	ErrCommentPost = NewAppError(TypeVCS, "failed to post review comment", nil).
			WithSuggestion("Check the token has 'pull-requests: write' permission")
)

// GitHub/VCS specific errors
var (
	ErrGitHubTokenInvalid = NewAppError(TypeVCS, "GitHub token is invalid or expired", nil).
				WithSuggestion("Use the workflow token: secrets.GITHUB_TOKEN")

	ErrGitHubInsufficientPerms = NewAppError(TypeVCS, "GitHub token has insufficient permissions", nil).
					WithSuggestion("Grant 'pull-requests: write' in the workflow permissions block")

	ErrGitHubRateLimit = NewAppError(TypeVCS, "GitHub API rate limit exceeded", nil).
				WithSuggestion("Wait a few minutes and re-run the job")
)

// AI errors
var (
	ErrAIGeneration = NewAppError(TypeAI, "AI generation failed", nil).
			WithSuggestion("Try again or check your API key configuration")

	ErrInvalidAIOutput = NewAppError(TypeAI, "invalid AI output format", nil).
				WithSuggestion("This is likely a temporary issue, please try again")

	ErrGeminiAPIKeyInvalid = NewAppError(TypeAI, "Gemini API key is invalid", nil).
				WithSuggestion("Get a valid API key at: https://aistudio.google.com/app/apikey")

	ErrGeminiQuotaExceeded = NewAppError(TypeAI, "Gemini API quota exceeded", nil).
				WithSuggestion("Wait for quota to reset or upgrade your Gemini plan")
)
