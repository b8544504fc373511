package campaign

import (
	"fmt"
	"io"

	"github.com/foxzi/pushry/internal/push"
)

// PreviewErrors is the number of error lines shown by default
const PreviewErrors = 20

// Report is what an operator sees after a run
type Report struct {
	Campaign Campaign     `json:"campaign"`
	Result   *push.Result `json:"result"`
	Rejected int          `json:"rejected"`
	Missing  int          `json:"missing"`
}

// SuccessRate returns delivered / processed as a percentage
func (r *Report) SuccessRate() float64 {
	processed := r.Result.Summary.Processed()
	if processed == 0 {
		return 0
	}
	return float64(r.Result.Summary.Success) * 100 / float64(processed)
}

// ErrorLines returns formatted error lines, capped at limit when limit > 0
func (r *Report) ErrorLines(limit int) []string {
	errs := r.Result.Errors
	if limit > 0 && len(errs) > limit {
		errs = errs[:limit]
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return lines
}

// Write prints the summary. All error lines are printed when showAll is set,
// otherwise the first PreviewErrors.
func (r *Report) Write(w io.Writer, showAll bool) {
	s := r.Result.Summary

	fmt.Fprintf(w, "Campaign:  %s (%s)\n", r.Campaign.Name, r.Campaign.ID)
	fmt.Fprintf(w, "Tokens:    %d\n", r.Result.Total)
	fmt.Fprintf(w, "Sent:      %d (iOS: %d, Android: %d, Universal: %d)\n",
		s.Success, s.IOSSuccess, s.AndroidSuccess, s.UniversalSuccess)
	fmt.Fprintf(w, "Errors:    %d\n", s.Errors)
	fmt.Fprintf(w, "Invalid:   %d (invalid/expired, not auto-removed)\n", s.Pruned)
	if r.Rejected > 0 {
		fmt.Fprintf(w, "Rejected:  %d (malformed, never sent)\n", r.Rejected)
	}
	if r.Missing > 0 {
		fmt.Fprintf(w, "Missing:   %d agents without a token\n", r.Missing)
	}
	if r.Result.Skipped > 0 {
		fmt.Fprintf(w, "Skipped:   %d (cancelled before dispatch)\n", r.Result.Skipped)
	}
	fmt.Fprintf(w, "Success:   %.1f%%\n", r.SuccessRate())
	fmt.Fprintf(w, "Duration:  %.2fs\n", r.Result.Duration.Seconds())

	if len(r.Result.Errors) == 0 {
		return
	}

	limit := PreviewErrors
	if showAll {
		limit = 0
	}
	fmt.Fprintf(w, "\nErrors:\n")
	for _, line := range r.ErrorLines(limit) {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if hidden := len(r.Result.Errors) - PreviewErrors; !showAll && hidden > 0 {
		fmt.Fprintf(w, "  ... and %d more (use --show-errors)\n", hidden)
	}
}
