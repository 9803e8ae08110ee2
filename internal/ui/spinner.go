package ui

import (
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
)

// Spinner shows progress while a long step runs. It only animates when the
// target is a terminal, so CI logs stay clean.
type Spinner struct {
	spinner *spinner.Spinner
}

func NewSpinner(w io.Writer, message string) *Spinner {
	opts := []spinner.Option{
		spinner.WithColor("cyan"),
		spinner.WithSuffix(" " + message),
		spinner.WithHiddenCursor(true),
	}
	if f, ok := w.(*os.File); ok {
		opts = append(opts, spinner.WithWriterFile(f))
	} else {
		opts = append(opts, spinner.WithWriter(io.Discard))
	}
	return &Spinner{spinner: spinner.New(spinner.CharSets[14], 100*time.Millisecond, opts...)}
}

func (s *Spinner) Start() {
	s.spinner.Start()
}

func (s *Spinner) Stop() {
	s.spinner.Stop()
}

// UpdateMessage replaces the text shown next to the spinner.
func (s *Spinner) UpdateMessage(msg string) {
	s.spinner.Lock()
	s.spinner.Suffix = " " + msg
	s.spinner.Unlock()
}
