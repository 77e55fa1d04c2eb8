// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/coworkbill/adapters/idgen"
	"github.com/artpar/coworkbill/adapters/metrics"
	"github.com/artpar/coworkbill/domain/billing"
	"github.com/artpar/coworkbill/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CycleKeyFunc derives the invoice ID for one billing cycle.
type CycleKeyFunc func(tenantID, resource string, start time.Time, step time.Duration) string

// CheckReport summarizes one recurring check.
type CheckReport struct {
	StartedAt         time.Time                  `json:"startedAt"`
	Duration          time.Duration              `json:"duration"`
	LockSkipped       bool                       `json:"lockSkipped,omitempty"`
	TenantsScanned    int                        `json:"tenantsScanned"`
	TenantsFailed     int                        `json:"tenantsFailed"`
	Groups            int                        `json:"groups"`
	Skipped           map[billing.SkipReason]int `json:"skipped"`
	MarkedOverdue     int                        `json:"markedOverdue"`
	Generated         int                        `json:"generated"`
	DuplicatesAvoided int                        `json:"duplicatesAvoided"`
}

func (r *CheckReport) merge(o tenantResult) {
	r.Groups += o.groups
	r.MarkedOverdue += o.overdue
	r.Generated += o.generated
	r.DuplicatesAvoided += o.duplicates
	for reason, n := range o.skipped {
		r.Skipped[reason] += n
	}
}

type tenantResult struct {
	groups     int
	overdue    int
	generated  int
	duplicates int
	skipped    map[billing.SkipReason]int
}

// RecurringServiceConfig contains configuration for RecurringService.
type RecurringServiceConfig struct {
	Store    ports.InvoiceStore
	Calendar *billing.Calendar
	Clock    ports.Clock
	Locker   ports.Locker
	Metrics  *metrics.Collector
	Logger   zerolog.Logger

	// Concurrency bounds how many tenants are processed at once.
	Concurrency int

	// LockName and LockTTL are used with Locker. A zero TTL defaults to 5m.
	LockName string
	LockTTL  time.Duration

	// CycleKey overrides idgen.CycleKey.
	CycleKey CycleKeyFunc
}

// RecurringService runs the overdue transition and successor generation
// for every tenant.
type RecurringService struct {
	store    ports.InvoiceStore
	clock    ports.Clock
	locker   ports.Locker
	metrics  *metrics.Collector
	logger   zerolog.Logger
	cycleKey CycleKeyFunc

	calendar    atomic.Pointer[billing.Calendar]
	concurrency atomic.Int64

	lockName string
	lockTTL  time.Duration
}

// NewRecurringService creates a new recurring billing service.
func NewRecurringService(cfg RecurringServiceConfig) *RecurringService {
	s := &RecurringService{
		store:    cfg.Store,
		clock:    cfg.Clock,
		locker:   cfg.Locker,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		cycleKey: cfg.CycleKey,
		lockName: cfg.LockName,
		lockTTL:  cfg.LockTTL,
	}
	if s.cycleKey == nil {
		s.cycleKey = idgen.CycleKey
	}
	if s.lockName == "" {
		s.lockName = "recurring-check"
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 5 * time.Minute
	}
	cal := cfg.Calendar
	if cal == nil {
		cal = billing.DefaultCalendar()
	}
	s.calendar.Store(cal)
	s.SetConcurrency(cfg.Concurrency)
	return s
}

// SetCalendar swaps the period calendar used by subsequent checks.
func (s *RecurringService) SetCalendar(cal *billing.Calendar) {
	if cal != nil {
		s.calendar.Store(cal)
	}
}

// Calendar returns the active period calendar.
func (s *RecurringService) Calendar() *billing.Calendar {
	return s.calendar.Load()
}

// SetConcurrency changes the tenant parallelism of subsequent checks.
func (s *RecurringService) SetConcurrency(n int) {
	if n <= 0 {
		n = 1
	}
	s.concurrency.Store(int64(n))
}

// RunCheck performs one pass over all tenants. Failures of single tenants
// are logged and counted; the returned error is reserved for failures that
// prevent the pass from running at all.
func (s *RecurringService) RunCheck(ctx context.Context) (CheckReport, error) {
	report := CheckReport{
		StartedAt: s.clock.Now(),
		Skipped:   make(map[billing.SkipReason]int),
	}
	start := time.Now()

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, s.lockName, s.lockTTL)
		switch {
		case err != nil:
			// Cycle keys keep the pass safe without the lock.
			s.logger.Warn().Err(err).Msg("recurring check lock unavailable, continuing without it")
		case !ok:
			s.logger.Info().Msg("recurring check held by another instance, skipping")
			report.LockSkipped = true
			s.observe(report, "locked")
			return report, nil
		default:
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), s.lockName); err != nil {
					s.logger.Warn().Err(err).Msg("failed to release recurring check lock")
				}
			}()
		}
	}

	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		report.Duration = time.Since(start)
		if errors.Is(err, billing.ErrStoreUnavailable) {
			s.logger.Warn().Err(err).Msg("billing store not connected, skipping recurring check")
			s.observe(report, "unavailable")
			return report, err
		}
		s.logger.Error().Err(err).Msg("failed to list tenants")
		s.observe(report, "error")
		return report, fmt.Errorf("list tenants: %w", err)
	}

	now := s.clock.Now()
	cal := s.calendar.Load()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(int(s.concurrency.Load()))

	for _, tenant := range tenants {
		g.Go(func() error {
			res, err := s.processTenant(ctx, tenant, now, cal)

			mu.Lock()
			defer mu.Unlock()
			report.TenantsScanned++
			report.merge(res)
			if err != nil {
				report.TenantsFailed++
				if s.metrics != nil {
					s.metrics.TenantFailures.Inc()
				}
				s.logger.Error().Err(err).Str("tenant_id", tenant.ID).Msg("recurring check failed for tenant")
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	s.observe(report, "ok")

	s.logger.Info().
		Int("tenants", report.TenantsScanned).
		Int("tenants_failed", report.TenantsFailed).
		Int("marked_overdue", report.MarkedOverdue).
		Int("generated", report.Generated).
		Int("duplicates", report.DuplicatesAvoided).
		Dur("duration", report.Duration).
		Msg("recurring check complete")

	return report, nil
}

// processTenant handles one tenant's groups sequentially so that the
// duplicate check and the create for a group never race within a pass.
func (s *RecurringService) processTenant(ctx context.Context, tenant billing.Tenant, now time.Time, cal *billing.Calendar) (res tenantResult, err error) {
	res.skipped = make(map[billing.SkipReason]int)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	invoices, err := s.store.ListInvoices(ctx, tenant.ID)
	if err != nil {
		return res, fmt.Errorf("list invoices: %w", err)
	}

	log := s.logger.With().Str("tenant_id", tenant.ID).Logger()

	for _, group := range billing.GroupByResource(invoices) {
		res.groups++
		plan := billing.PlanRollover(group, tenant, now, cal)

		if plan.Skip != billing.SkipNone {
			res.skipped[plan.Skip]++
			ev := log.Debug()
			if plan.Skip != billing.SkipNotDue {
				ev = log.Info()
			}
			ev.Str("resource", group.Resource).Str("reason", string(plan.Skip)).Msg("skipping resource group")
			continue
		}

		for _, ref := range plan.MarkOverdue {
			if err := s.store.MarkOverdue(ctx, ref); err != nil {
				return res, fmt.Errorf("mark %s overdue: %w", ref.InvoiceID, err)
			}
			res.overdue++
			log.Info().Str("resource", group.Resource).Str("invoice_id", ref.InvoiceID).Msg("invoice marked overdue")
		}

		if plan.Successor == nil {
			res.duplicates++
			log.Debug().Str("resource", group.Resource).Str("existing", plan.Existing).Msg("next cycle already invoiced")
			continue
		}

		draft := *plan.Successor
		draft.ID = s.cycleKey(tenant.ID, group.Resource, draft.StartDate, plan.Period.Step)

		ref, err := s.store.CreateInvoice(ctx, tenant.ID, draft)
		if errors.Is(err, billing.ErrDuplicateInvoice) {
			res.duplicates++
			log.Debug().Str("resource", group.Resource).Str("invoice_id", draft.ID).Msg("cycle key already used")
			continue
		}
		if err != nil {
			return res, fmt.Errorf("create invoice for %s: %w", group.Resource, err)
		}
		res.generated++
		log.Info().
			Str("resource", group.Resource).
			Str("invoice_id", ref.InvoiceID).
			Time("start_date", draft.StartDate).
			Time("due_date", draft.DueDate).
			Msg("invoice generated")
	}

	return res, nil
}

func (s *RecurringService) observe(r CheckReport, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChecksTotal.WithLabelValues(result).Inc()
	if result != "ok" {
		return
	}
	s.metrics.CheckDuration.Observe(r.Duration.Seconds())
	s.metrics.LastCheck.Set(float64(r.StartedAt.Unix()))
	s.metrics.InvoicesOverdue.Add(float64(r.MarkedOverdue))
	s.metrics.InvoicesGenerated.Add(float64(r.Generated))
	s.metrics.DuplicatesAvoided.Add(float64(r.DuplicatesAvoided))
	for reason, n := range r.Skipped {
		s.metrics.GroupsSkipped.WithLabelValues(string(reason)).Add(float64(n))
	}
}
