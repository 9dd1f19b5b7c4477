// Package quality implements the post-publish Quality Gate. It reads the
// structured store, evaluates invariant checks over every published row and
// reports the offending rows. Nothing is ever repaired.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
)

// Violation identifies one offending value in a published row.
type Violation struct {
	Check  string           `json:"check"`
	Entity model.EntityType `json:"entity"`
	Key    string           `json:"key"`
	Field  string           `json:"field"`
	Value  string           `json:"value"`
}

// CheckResult is the outcome of one check. It passes when it flags no rows.
type CheckResult struct {
	Name       string      `json:"name"`
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations"`
}

// Report is the outcome of one gate run. It passes when every check found no
// violations.
type Report struct {
	RunID           string        `json:"run_id"`
	CheckedAt       time.Time     `json:"checked_at"`
	Passed          bool          `json:"passed"`
	TotalViolations int           `json:"total_violations"`
	Checks          []CheckResult `json:"checks"`
}

// Reader is the read side of the structured store.
type Reader interface {
	Contacts(ctx context.Context) ([]model.Contact, error)
	ChannelDailyStats(ctx context.Context) ([]model.ChannelDailyStat, error)
	Heatmap(ctx context.Context) ([]model.HeatmapCell, error)
	Campaigns(ctx context.Context) ([]model.Campaign, error)
	DailySummaries(ctx context.Context) ([]model.DailySummary, error)
}

// Dataset is every published row, as read by one gate run.
type Dataset struct {
	Contacts   []model.Contact
	DailyStats []model.ChannelDailyStat
	Heatmap    []model.HeatmapCell
	Campaigns  []model.Campaign
	Summaries  []model.DailySummary
}

// Gate runs invariant checks over the published tables.
type Gate struct {
	reader Reader
	checks []Check
	now    func() time.Time
	logger *slog.Logger
}

// NewGate builds a gate running checks, or DefaultChecks when none are given.
func NewGate(reader Reader, checks ...Check) *Gate {
	if len(checks) == 0 {
		checks = DefaultChecks()
	}
	return &Gate{
		reader: reader,
		checks: checks,
		now:    time.Now,
		logger: slog.Default().With("component", "quality-gate"),
	}
}

// Run evaluates every check. An error is returned only when the store cannot
// be read; violations are reported in the Report.
func (g *Gate) Run(ctx context.Context, runID string) (*Report, error) {
	data, err := g.load(ctx)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	today := model.Day(now)
	report := &Report{RunID: runID, CheckedAt: now, Passed: true}
	for _, c := range g.checks {
		violations := c.Run(data, today)
		if violations == nil {
			violations = []Violation{}
		}
		res := CheckResult{Name: c.Name, Passed: len(violations) == 0, Violations: violations}
		report.Checks = append(report.Checks, res)
		report.TotalViolations += len(violations)
		if !res.Passed {
			report.Passed = false
			g.logger.Warn("quality check failed", "check", c.Name, "violations", len(violations))
		}
	}

	g.logger.Info("quality gate finished",
		"run_id", runID,
		"passed", report.Passed,
		"violations", report.TotalViolations,
	)
	return report, nil
}

func (g *Gate) load(ctx context.Context) (Dataset, error) {
	var (
		d   Dataset
		err error
	)
	wrap := func(entity model.EntityType, err error) error {
		return fmt.Errorf("%w: reading %s: %w", apperrors.ErrStructuredStore, entity, err)
	}
	if d.Contacts, err = g.reader.Contacts(ctx); err != nil {
		return d, wrap(model.EntityContacts, err)
	}
	if d.DailyStats, err = g.reader.ChannelDailyStats(ctx); err != nil {
		return d, wrap(model.EntityChannelDailyStats, err)
	}
	if d.Heatmap, err = g.reader.Heatmap(ctx); err != nil {
		return d, wrap(model.EntityHeatmap, err)
	}
	if d.Campaigns, err = g.reader.Campaigns(ctx); err != nil {
		return d, wrap(model.EntityCampaigns, err)
	}
	if d.Summaries, err = g.reader.DailySummaries(ctx); err != nil {
		return d, wrap(model.EntityDailySummary, err)
	}
	return d, nil
}

// Violations flattens the report into the failing rows of every check.
func (r *Report) Violations() []Violation {
	var out []Violation
	for _, c := range r.Checks {
		out = append(out, c.Violations...)
	}
	return out
}

// CountByCheck returns the violation count per check name, including zeros.
func (r *Report) CountByCheck() map[string]int {
	out := make(map[string]int, len(r.Checks))
	for _, c := range r.Checks {
		out[c.Name] = len(c.Violations)
	}
	return out
}
