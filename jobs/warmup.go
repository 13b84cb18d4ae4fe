package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/transitops/transitops/internal/gateway"
	jobmetrics "github.com/transitops/transitops/internal/jobs"
	"github.com/transitops/transitops/internal/metrics"
	"github.com/transitops/transitops/internal/scope"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CompanyLister is the gateway subset the warmup needs to discover scopes.
type CompanyLister interface {
	ListCompanies(ctx context.Context) ([]gateway.Company, error)
}

// DashboardWarmupJob pre-populates the metric caches for every company scope
// so the first dashboard view after a cache bump stays fast.
type DashboardWarmupJob struct {
	Service   *metrics.Service
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(service *metrics.Service, companies CompanyLister, logger *slog.Logger, jm *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{
		Service:   service,
		Companies: companies,
		Logger:    logger,
		Metrics:   jm,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 7
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("window_days", payload.WindowDays))
	logger.Info("starting dashboard warmup")

	end := j.now().Truncate(24 * time.Hour)
	rng := metrics.DateRange{Start: end.AddDate(0, 0, -(payload.WindowDays - 1)), End: end}

	companies, err := j.fetchCompanies(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load warmup companies", slog.Any("error", err))
		return resultErr
	}

	scopes := make([]scope.Scope, 0, len(companies)+1)
	scopes = append(scopes, scope.All())
	for _, company := range companies {
		scopes = append(scopes, scope.ForCompany(company.ID))
	}

	warmed := 0
	for _, sc := range scopes {
		if err := j.warmScope(ctx, sc, rng); err != nil {
			resultErr = err
			logger.Error("warm scope", slog.String("scope", sc.Token()), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed dashboard warmup", slog.Int("scopes", warmed))
	return resultErr
}

func (j *DashboardWarmupJob) warmScope(ctx context.Context, sc scope.Scope, rng metrics.DateRange) error {
	scopeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	snapshot, err := j.Service.ComputeMetrics(scopeCtx, sc, rng)
	if err != nil {
		return err
	}
	// Degraded fetches are not cached, so a partial snapshot is worth a
	// retry on the next run rather than an immediate failure.
	if !snapshot.Complete {
		j.logger().Warn("warmup snapshot incomplete", slog.String("scope", sc.Token()))
	}
	if _, err := j.Service.StatusDistribution(scopeCtx, sc); err != nil {
		return err
	}
	if _, err := j.Service.RouteDistribution(scopeCtx, sc); err != nil {
		return err
	}
	if sc.CompanyID == nil {
		if _, err := j.Service.RevenueByCompany(scopeCtx, rng); err != nil {
			return err
		}
	}
	return nil
}

func (j *DashboardWarmupJob) fetchCompanies(ctx context.Context) ([]gateway.Company, error) {
	if j.Companies == nil {
		return nil, errors.New("dashboard warmup: company lister not configured")
	}
	return j.Companies.ListCompanies(ctx)
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DashboardWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
