package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/thomas-vilte/leanreview/internal/models"
)

// HandleAppError prints err with its details and suggestion. t may be nil.
func HandleAppError(w io.Writer, err error, t *i18n.Translations) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)

	var appErr *domainErrors.AppError
	if !errors.As(err, &appErr) {
		_, _ = errorColor.Fprintf(w, "❌ %s\n", err.Error())
		return
	}

	suggestionColor := color.New(color.FgCyan)
	dimColor := color.New(color.FgHiBlack)

	_, _ = errorColor.Fprintf(w, "❌ %s: %s\n", appErr.Type, appErr.Message)

	if appErr.Err != nil {
		_, _ = dimColor.Fprintf(w, "   Details: %v\n", appErr.Err)
	}
	if stderr, ok := appErr.Context["stderr"].(string); ok && stderr != "" {
		_, _ = dimColor.Fprintf(w, "   %s\n", strings.TrimSpace(stderr))
	}

	if appErr.Suggestion != "" {
		tryPrefix := "💡 Try: "
		if t != nil {
			tryPrefix = t.GetMessage("try_suggestion", 0, nil) + " "
		}
		_, _ = suggestionColor.Fprint(w, tryPrefix)
		for i, line := range strings.Split(appErr.Suggestion, "\n") {
			if i == 0 {
				_, _ = fmt.Fprintln(w, line)
			} else {
				_, _ = fmt.Fprintf(w, "       %s\n", line)
			}
		}
	}
}

func PrintTokenUsage(w io.Writer, usage *models.TokenUsage, t *i18n.Translations) {
	if usage == nil {
		return
	}
	cyan := color.New(color.FgCyan)
	_, _ = cyan.Fprint(w, "📊 ")
	_, _ = fmt.Fprintf(w, "%s\n", t.GetMessage("token_usage", 0, map[string]interface{}{
		"Input":  usage.InputTokens,
		"Output": usage.OutputTokens,
		"Total":  usage.TotalTokens,
	}))
	if usage.DurationMs > 0 {
		_, _ = fmt.Fprintf(w, "⏱️  %dms\n", usage.DurationMs)
	}
}
