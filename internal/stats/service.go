package stats

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autoservis/autoservis/internal/platform/cache"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

// Service assembles dashboards. Results are cached briefly per scope.
type Service struct {
	repo  Repository
	cache *cache.Versioned
}

// NewService constructs a Service. A nil cache computes every request.
func NewService(repo Repository, statsCache *cache.Versioned) *Service {
	return &Service{repo: repo, cache: statsCache}
}

// Dashboard returns the shop overview. Recent activity is only filled for
// stats.recent_activity roles.
func (s *Service) Dashboard(ctx context.Context, requester shared.Principal) (Dashboard, error) {
	withActivity := rbac.Allowed(requester.Roles, rbac.OpStatsRecentActivity)
	scope := "basic"
	if withActivity {
		scope = "full"
	}
	var out Dashboard
	err := s.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return s.loadDashboard(ctx, withActivity)
	}, "dashboard", scope)
	return out, err
}

func (s *Service) loadDashboard(ctx context.Context, withActivity bool) (Dashboard, error) {
	d := Dashboard{TopMechanics: []MechanicRank{}, RecentActivities: []Activity{}}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.Counts(ctx)
		if err != nil {
			return fmt.Errorf("counts: %w", err)
		}
		d.Counts = counts
		return nil
	})
	g.Go(func() error {
		top, err := s.repo.TopMechanics(ctx, topMechanicsLimit)
		if err != nil {
			return fmt.Errorf("top mechanics: %w", err)
		}
		if top != nil {
			d.TopMechanics = top
		}
		return nil
	})
	if withActivity {
		g.Go(func() error {
			recent, err := s.repo.RecentActivity(ctx, recentActivityLimit)
			if err != nil {
				return fmt.Errorf("recent activity: %w", err)
			}
			if recent != nil {
				d.RecentActivities = recent
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// CustomerDashboard returns the requester's own account summary.
func (s *Service) CustomerDashboard(ctx context.Context, requester shared.Principal) (CustomerDashboard, error) {
	if !rbac.Allowed(requester.Roles, rbac.OpStatsCustomerView) {
		return CustomerDashboard{}, shared.Forbidden("customer dashboard is for customers only")
	}
	var out CustomerDashboard
	err := s.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		d := CustomerDashboard{Vehicles: []VehicleSummary{}}
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			totals, err := s.repo.CustomerTotals(ctx, requester.UserID)
			if err != nil {
				return fmt.Errorf("customer totals: %w", err)
			}
			d.CustomerTotals = totals
			return nil
		})
		g.Go(func() error {
			vehicles, err := s.repo.CustomerVehicles(ctx, requester.UserID)
			if err != nil {
				return fmt.Errorf("customer vehicles: %w", err)
			}
			if vehicles != nil {
				d.Vehicles = vehicles
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return d, nil
	}, "customer", requester.UserID)
	return out, err
}

// MechanicDashboard returns the requester's own performance and workload.
func (s *Service) MechanicDashboard(ctx context.Context, requester shared.Principal) (MechanicDashboard, error) {
	if !rbac.Allowed(requester.Roles, rbac.OpStatsMechanicView) {
		return MechanicDashboard{}, shared.Forbidden("mechanic dashboard is for mechanics only")
	}
	var out MechanicDashboard
	err := s.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		var d MechanicDashboard
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			perf, err := s.repo.MechanicPerformance(ctx, requester.UserID)
			if err != nil {
				return fmt.Errorf("mechanic performance: %w", err)
			}
			d.MechanicPerformance = perf
			return nil
		})
		g.Go(func() error {
			load, err := s.repo.MechanicWorkload(ctx, requester.UserID)
			if err != nil {
				return fmt.Errorf("mechanic workload: %w", err)
			}
			d.Workload = load
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return d, nil
	}, "mechanic", requester.UserID)
	return out, err
}

// Invalidate drops every cached dashboard.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) fetch(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return fmt.Errorf("stats: cache key: %w", err)
	}
	if err := s.cache.FetchJSON(ctx, key, dest, loader); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	return nil
}
