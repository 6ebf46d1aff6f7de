package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
)

// File and type statuses.
const (
	StatusOK        = "ok"
	StatusViolation = "violation"
	StatusError     = "error"
	StatusUnbound   = "unbound"
)

// Member resolution states.
const (
	MemberDeclared    = "declared"
	MemberImplemented = "implemented"
	MemberMissing     = "missing"
)

// Report is the result of one check run.
type Report struct {
	RunID   uuid.UUID     `json:"run_id"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Enabled bool          `json:"enabled"`
	Files   []FileReport  `json:"files"`
	Stats   *Stats        `json:"stats,omitempty"`
}

type FileReport struct {
	Path      string           `json:"path"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Violation *ViolationReport `json:"violation,omitempty"`
	Monitors  MonitorCounts    `json:"monitors"`
	Episodes  []EpisodeReport  `json:"episodes,omitempty"`
	Types     []TypeReport     `json:"types"`
}

type ViolationReport struct {
	Type      string `json:"type"`
	Side      string `json:"side"`
	Component string `json:"component"`
	Member    string `json:"member"`
	Owner     string `json:"owner,omitempty"`
	Line      int    `json:"line,omitempty"`
	Message   string `json:"message"`
}

type MonitorCounts struct {
	Passed     int `json:"passed"`
	Aborted    int `json:"aborted"`
	Violations int `json:"violations"`
}

// EpisodeReport is one monitored episode, in the order it ended.
type EpisodeReport struct {
	Type      string `json:"type"`
	Side      string `json:"side"`
	Component string `json:"component"`
	Mode      string `json:"mode"`
	Placement string `json:"placement"`
	State     string `json:"state"`
	Violation string `json:"violation,omitempty"`
}

type TypeReport struct {
	Name               string         `json:"name"`
	Kind               string         `json:"kind"`
	Status             string         `json:"status"`
	Component          bool           `json:"component"`
	Abstract           []string       `json:"abstract,omitempty"`
	SingletonAbstract  []string       `json:"singleton_abstract,omitempty"`
	Ancestors          []string       `json:"ancestors"`
	SingletonAncestors []string       `json:"singleton_ancestors"`
	Members            []MemberReport `json:"members,omitempty"`
}

// MemberReport is the resolution of one abstract member on one side.
type MemberReport struct {
	Side      string `json:"side"`
	Component string `json:"component"`
	Member    string `json:"member"`
	Qualified string `json:"qualified"`
	Owner     string `json:"owner,omitempty"`
	State     string `json:"state"`
}

// Stats describes the checking process.
type Stats struct {
	RSS     uint64  `json:"rss_bytes"`
	CPUUser float64 `json:"cpu_user_seconds"`
	Threads int32   `json:"threads"`
}

func newReport(enabled bool) *Report {
	return &Report{RunID: uuid.New(), Started: time.Now(), Enabled: enabled}
}

func (r *Report) finish() { r.Elapsed = time.Since(r.Started) }

// Violations returns the number of files stopped by a violation.
func (r *Report) Violations() int { return r.count(StatusViolation) }

// Failures returns the number of files stopped by any other error.
func (r *Report) Failures() int { return r.count(StatusError) }

func (r *Report) count(status string) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Err maps the report to the command result.
func (r *Report) Err() error {
	if n := r.Violations(); n > 0 {
		return &violationError{n: n}
	}
	if n := r.Failures(); n > 0 {
		return fmt.Errorf("%d of %d file(s) failed to load", n, len(r.Files))
	}
	return nil
}

// violationError makes the process exit with code 2.
type violationError struct{ n int }

func (e *violationError) Error() string {
	return fmt.Sprintf("%d file(s) leave abstract members unimplemented", e.n)
}

func (e *violationError) ExitCode() int { return 2 }

// collectStats samples the current process.
func collectStats() (*Stats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("inspecting process: %w", err)
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("reading memory info: %w", err)
	}
	st := &Stats{RSS: mem.RSS}
	if times, err := p.Times(); err == nil {
		st.CPUUser = times.User
	}
	if n, err := p.NumThreads(); err == nil {
		st.Threads = n
	}
	return st, nil
}

// ---- Rendering ---------------------------------------------------------------

var (
	styleOK = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	styleErr = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleWarn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))
)

func renderJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func renderText(w io.Writer, r *Report) {
	for _, f := range r.Files {
		switch f.Status {
		case StatusOK:
			fmt.Fprintf(w, "%s %s %s\n", styleOK.Render("✓"), f.Path,
				styleDim.Render(fmt.Sprintf("(%d types, %d checks)", len(f.Types), f.Monitors.Passed)))
		case StatusViolation:
			loc := f.Path
			if f.Violation.Line > 0 {
				loc = fmt.Sprintf("%s:%d", f.Path, f.Violation.Line)
			}
			fmt.Fprintf(w, "%s %s %s\n", styleErr.Render("✗"), loc, styleErr.Render(f.Violation.Message))
		default:
			fmt.Fprintf(w, "%s %s %s\n", styleWarn.Render("!"), f.Path, f.Error)
		}
	}

	state := "enabled"
	if !r.Enabled {
		state = "disabled"
	}
	summary := fmt.Sprintf("%d file(s): %d ok, %d violation(s), %d error(s)  [checks %s, %s]",
		len(r.Files), r.count(StatusOK), r.Violations(), r.Failures(), state, r.Elapsed.Round(time.Microsecond))
	fmt.Fprintln(w, styleTitle.Render(summary))

	if r.Stats != nil {
		fmt.Fprintln(w, styleDim.Render(fmt.Sprintf("rss %s  cpu %.2fs  threads %d",
			humanize.IBytes(r.Stats.RSS), r.Stats.CPUUser, r.Stats.Threads)))
	}
}

// memberSummary renders the abstract members of a type as "#a #b .c".
func memberSummary(t TypeReport) string {
	var parts []string
	for _, m := range t.Abstract {
		parts = append(parts, "#"+m)
	}
	for _, m := range t.SingletonAbstract {
		parts = append(parts, "."+m)
	}
	return strings.Join(parts, " ")
}
