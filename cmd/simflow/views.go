package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"simflow/internal/scheduler"
)

// jobReportView is the JSON shape of a scheduler.JobReport.
type jobReportView struct {
	JobID      string `json:"job_id"`
	Label      string `json:"label"`
	Pipeline   string `json:"pipeline,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Progress   string `json:"progress"`
	Status     string `json:"status"`
	Dispatched bool   `json:"dispatched"`
	Terminal   bool   `json:"terminal"`
	Blocker    string `json:"blocker,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

type reportView struct {
	PassID     string          `json:"pass_id,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Counts     map[string]int  `json:"counts"`
	Jobs       []jobReportView `json:"jobs"`
}

func newReportView(r scheduler.Report) reportView {
	view := reportView{
		PassID:     r.PassID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Counts:     make(map[string]int),
		Jobs:       make([]jobReportView, 0, len(r.Jobs)),
	}
	for status, n := range r.Counts() {
		view.Counts[string(status)] = n
	}
	for _, jr := range r.Jobs {
		v := jobReportView{
			JobID:      jr.JobID,
			Label:      jr.Label,
			Pipeline:   jr.Discriminator,
			Stage:      jr.Stage,
			Progress:   progress(jr),
			Status:     string(jr.Status),
			Dispatched: jr.Dispatched,
			Terminal:   jr.Terminal,
			Blocker:    jr.Blocker,
			ErrorKind:  jr.ErrorKind,
			DurationMS: jr.Duration.Milliseconds(),
		}
		if jr.Err != nil {
			v.Error = jr.Err.Error()
		}
		view.Jobs = append(view.Jobs, v)
	}
	return view
}

func progress(jr scheduler.JobReport) string {
	if jr.StageCount == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", jr.StageIndex, jr.StageCount)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printPassSummary(w io.Writer, r scheduler.Report) {
	fmt.Fprintf(w, "Pass %s: %d dispatched, %d failed, %d of %d jobs complete (%s)\n",
		shortID(r.PassID), r.Dispatched(), r.Failed(), r.Terminal(), len(r.Jobs),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, jr := range r.Jobs {
		switch {
		case jr.Status == scheduler.StatusFailed:
			fmt.Fprintf(w, "  FAILED    %s %s [%s]: %s\n", shortID(jr.JobID), jr.Label, jr.Stage, truncate(errorText(jr), 160))
		case jr.Dispatched:
			fmt.Fprintf(w, "  completed %s %s [%s] in %s\n", shortID(jr.JobID), jr.Label, jr.Stage, jr.Duration.Round(time.Millisecond))
		}
	}
}

func errorText(jr scheduler.JobReport) string {
	if jr.Err == nil {
		return ""
	}
	return jr.Err.Error()
}
