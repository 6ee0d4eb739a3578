package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// progress renders one bar per long-running stage. Only one bar is live at
// a time; a new stage finishes the previous one.
type progress struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
	bar   *progressbar.ProgressBar
	label string
}

func newProgress(out io.Writer, quiet bool) *progress {
	return &progress{out: out, quiet: quiet}
}

func (p *progress) start(label string, total int, bytes bool) *progressbar.ProgressBar {
	if p.bar != nil && p.label == label {
		return p.bar
	}
	p.finishLocked()
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(fmt.Sprintf("[%s]", label)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	}
	if bytes {
		opts = append(opts, progressbar.OptionShowBytes(true), progressbar.OptionSpinnerType(14))
	} else {
		opts = append(opts, progressbar.OptionShowCount(), progressbar.OptionSetPredictTime(true))
	}
	p.bar = progressbar.NewOptions(total, opts...)
	p.label = label
	return p.bar
}

// files reports per-file discovery progress.
func (p *progress) files(done, total int, file string, endpoints int) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	bar := p.start("discovery", total, false)
	bar.Describe(fmt.Sprintf("[discovery] %d endpoints", endpoints))
	_ = bar.Set(done)
}

// stream reports bytes received from the code generation stream.
func (p *progress) stream(answer, reasoning int) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.start("code", -1, true).Set(answer + reasoning)
}

// line prints a status message below any live bar.
func (p *progress) line(format string, args ...any) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *progress) finishLocked() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
	p.label = ""
}
