/*
checker.go - Daily demurrage check (batch scan job)

PURPOSE:
  Scans every shipment that is not yet flagged, computes its demurrage start
  date and flags the ones whose start date is today or earlier.

ALGORITHM:
  1. now = Clock.Now() (pinned to the local civil timezone), today = Day(now)
  2. In ONE transaction, for each unflagged shipment:
     - skip when ETA is missing
     - skip (warn) when the company is missing or has no country
     - free days = active config for the country, else DefaultFreeDays
     - start = Calculator.StartDate(ETA, country, free days)
     - if today >= start: flag, demurrage_from = start, updated_at = now
  3. Commit. Any unexpected error rolls back every flag of this run.

FAILURE SEMANTICS:
  Run never returns an error and never panics. Failures are reported in
  the Result so the scheduler always gets a well-formed answer.

  Missing data:            per shipment, logged, counted as skipped
  Calendar inconsistent:   per shipment, logged, counted as skipped
  Store error / panic:     whole run fails, full rollback

IDEMPOTENCE:
  Flagged shipments are excluded up front and MarkDemurrage only touches
  unflagged rows, so re-running the same day changes nothing new.

SEE ALSO:
  - calculator.go: Start date walk
  - scheduler/scheduler.go: Daily trigger
*/
package demurrage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/metrics"
)

// Checker runs the daily demurrage check.
type Checker struct {
	Store TxStore
	Runs  RunStore // optional
	Clock Clock

	DefaultFreeDays int
	MaxLookahead    int

	Logger *log.Logger
}

// NewChecker creates a checker with the default free days and lookahead.
func NewChecker(store TxStore, runs RunStore, clock Clock, logger *log.Logger) *Checker {
	return &Checker{
		Store:           store,
		Runs:            runs,
		Clock:           clock,
		DefaultFreeDays: DefaultFreeDays,
		MaxLookahead:    DefaultMaxLookahead,
		Logger:          logger,
	}
}

type scanStats struct {
	checked int
	updated int
	skipped int
}

// Run executes one batch scan and reports its outcome. The scan runs to
// completion even if ctx is cancelled; only ctx's values are used.
func (c *Checker) Run(ctx context.Context, trigger Trigger) (res Result) {
	ctx = context.WithoutCancel(ctx)
	now := c.now()
	res = Result{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: now,
	}

	var stats scanStats
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Checked = stats.checked
			res.Skipped = stats.skipped
			res.Updated = 0
			res.Message = fmt.Sprintf("Demurrage check failed: panic: %v", p)
			c.logf("[Demurrage] Run %s panicked: %v", res.RunID, p)
		}
		res.FinishedAt = c.now()
		metrics.ObserveRun(string(res.Trigger), res.Success, res.Duration(), res.Checked, res.Updated, res.Skipped)
		c.saveRun(ctx, res)
	}()

	today := calendar.Day(now)
	c.logf("[Demurrage] Run %s (%s) checking shipments as of %s", res.RunID, trigger, calendar.FormatDate(today))

	err := c.Store.WithTx(ctx, func(tx Tx) error {
		stats = scanStats{}
		return c.scan(ctx, tx, now, &stats)
	})

	res.Checked = stats.checked
	res.Skipped = stats.skipped
	if err != nil {
		res.Success = false
		res.Message = fmt.Sprintf("Demurrage check failed: %v", err)
		c.logf("[Demurrage] Run %s rolled back after %d shipments: %v", res.RunID, stats.checked, err)
		return res
	}

	res.Success = true
	res.Updated = stats.updated
	res.Message = fmt.Sprintf("Demurrage check completed. Updated %d of %d shipments.", stats.updated, stats.checked)
	c.logf("[Demurrage] Run %s completed: %d checked, %d flagged, %d skipped",
		res.RunID, stats.checked, stats.updated, stats.skipped)
	return res
}

func (c *Checker) scan(ctx context.Context, tx Tx, now time.Time, st *scanStats) error {
	today := calendar.Day(now)

	shipments, err := tx.PendingShipments(ctx)
	if err != nil {
		return fmt.Errorf("list pending shipments: %w", err)
	}

	calc := &Calculator{Calendar: calendar.NewCached(tx), MaxLookahead: c.MaxLookahead}
	freeDaysByCountry := make(map[string]int)

	for _, s := range shipments {
		st.checked++

		if s.ETA == nil {
			c.logf("[Demurrage] Shipment %s has no ETA, skipping", s.ID)
			st.skipped++
			continue
		}

		company, err := tx.GetCompany(ctx, s.CompanyID)
		if err != nil {
			return fmt.Errorf("company %s of shipment %s: %w", s.CompanyID, s.ID, err)
		}
		if company == nil {
			c.logf("[Demurrage] Warning: company %s not found for shipment %s, skipping", s.CompanyID, s.ID)
			st.skipped++
			continue
		}
		if company.CountryID == "" {
			c.logf("[Demurrage] Warning: company %s has no country, skipping shipment %s", company.ID, s.ID)
			st.skipped++
			continue
		}

		freeDays, err := c.freeDays(ctx, tx, company.CountryID, freeDaysByCountry)
		if err != nil {
			return err
		}

		start, err := calc.StartDate(ctx, *s.ETA, company.CountryID, freeDays)
		if errors.Is(err, ErrCalendarInconsistent) {
			c.logf("[Demurrage] Warning: shipment %s skipped: %v", s.ID, err)
			st.skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("start date of shipment %s: %w", s.ID, err)
		}

		if today.Before(start) {
			continue
		}

		marked, err := tx.MarkDemurrage(ctx, s.ID, start, now)
		if err != nil {
			return fmt.Errorf("flag shipment %s: %w", s.ID, err)
		}
		if marked {
			st.updated++
		}
	}
	return nil
}

func (c *Checker) freeDays(ctx context.Context, tx Tx, countryID string, cache map[string]int) (int, error) {
	if n, ok := cache[countryID]; ok {
		return n, nil
	}
	cfg, err := tx.ActiveConfigForCountry(ctx, countryID)
	if err != nil {
		return 0, fmt.Errorf("config for %s: %w", countryID, err)
	}
	n := c.DefaultFreeDays
	if cfg != nil {
		n = cfg.FreeDays
	}
	cache[countryID] = n
	return n, nil
}

func (c *Checker) saveRun(ctx context.Context, res Result) {
	if c.Runs == nil {
		return
	}
	run := Run{Result: res, CreatedAt: res.FinishedAt}
	if err := c.Runs.SaveRun(ctx, run); err != nil {
		c.logf("[Demurrage] Failed to record run %s: %v", res.RunID, err)
	}
}

func (c *Checker) now() time.Time {
	if c.Clock == nil {
		return SystemClock{}.Now()
	}
	return c.Clock.Now()
}

func (c *Checker) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
