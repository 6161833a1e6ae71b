package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/repository"
)

const (
	dashboardCacheKey    = "dashboard:staff"
	dashboardRecentLimit = 5
	dashboardNewWindow   = 7 * 24 * time.Hour
)

// DashboardService aggregates roster counters for the staff dashboard.
type DashboardService interface {
	Get(ctx context.Context) (dto.DashboardResponse, error)
}

type dashboardService struct {
	repo     repository.DashboardRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDashboardService builds the dashboard aggregator. Responses are cached in redis for ttl when
// both are set.
func NewDashboardService(repo repository.DashboardRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		repo:     repo,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "dashboard_service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *dashboardService) Get(ctx context.Context) (dto.DashboardResponse, error) {
	if response, ok := s.cached(ctx); ok {
		return response, nil
	}

	now := s.now()
	response := dto.DashboardResponse{GeneratedAt: now}

	var err error
	if response.TotalClasses, err = s.repo.CountClasses(ctx); err != nil {
		return dto.DashboardResponse{}, err
	}
	if response.TotalStudents, err = s.repo.CountActiveStudents(ctx); err != nil {
		return dto.DashboardResponse{}, err
	}
	if response.NewStudentsLast7d, err = s.repo.CountStudentsCreatedSince(ctx, now.Add(-dashboardNewWindow)); err != nil {
		return dto.DashboardResponse{}, err
	}

	classes, err := s.repo.RecentClasses(ctx, dashboardRecentLimit)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	response.RecentClasses = make([]dto.ClassResponse, 0, len(classes))
	for _, class := range classes {
		response.RecentClasses = append(response.RecentClasses, dto.NewClassResponse(class))
	}

	students, err := s.repo.RecentStudents(ctx, dashboardRecentLimit)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	response.RecentStudents = dto.NewStudentResponseSlice(students)

	s.store(ctx, response)
	return response, nil
}

func (s *dashboardService) cached(ctx context.Context) (dto.DashboardResponse, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return dto.DashboardResponse{}, false
	}

	payload, err := s.cache.Get(ctx, dashboardCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
		return dto.DashboardResponse{}, false
	}

	var response dto.DashboardResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return dto.DashboardResponse{}, false
	}
	s.logger.Debug().Msg("dashboard cache hit")
	return response, true
}

func (s *dashboardService) store(ctx context.Context, response dto.DashboardResponse) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
	}
}
