package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/repository"
)

const systemActor = "system"

// ActivityActor represents the authenticated actor performing a roster action.
type ActivityActor struct {
	ID   string
	Role string
}

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	ActorID    string
	ActorRole  string
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]interface{}
}

// ActivityRecorder defines behaviour for recording activity logs.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error)
}

// ActivityService exposes methods to query and persist activity logs.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
}

type activityService struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityService constructs the audit trail service used by every roster mutation.
func NewActivityService(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	model, err := entry.toModel()
	if err != nil {
		return dto.ActivityResponse{}, err
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("action", model.Action).Str("entity_id", model.EntityID).Msg("activity not persisted")
		return dto.ActivityResponse{}, err
	}
	return dto.NewActivityResponse(model), nil
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	entries, total, err := s.repo.List(ctx, repository.ActivityLogFilter{
		Page:       req.Page,
		PageSize:   req.PageSize,
		ActorID:    strings.TrimSpace(req.ActorID),
		Action:     strings.ToLower(strings.TrimSpace(req.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(req.EntityType)),
		EntityID:   strings.TrimSpace(req.EntityID),
		Since:      req.Since,
	})
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	items := make([]dto.ActivityResponse, len(entries))
	for i := range entries {
		items[i] = dto.NewActivityResponse(entries[i])
	}
	return dto.ActivityListResponse{Items: items, Pagination: paginate(req.Page, req.PageSize, total)}, nil
}

func (e ActivityEntry) toModel() (models.ActivityLog, error) {
	action := strings.ToLower(strings.TrimSpace(e.Action))
	entityType := strings.ToLower(strings.TrimSpace(e.EntityType))

	var missing []error
	if action == "" {
		missing = append(missing, errors.New("action is required"))
	}
	if entityType == "" {
		missing = append(missing, errors.New("entity type is required"))
	}
	if len(missing) > 0 {
		return models.ActivityLog{}, errors.Join(missing...)
	}

	return models.ActivityLog{
		ActorID:    orSystem(strings.TrimSpace(e.ActorID)),
		ActorRole:  orSystem(strings.ToLower(strings.TrimSpace(e.ActorRole))),
		Action:     action,
		EntityType: entityType,
		EntityID:   strings.TrimSpace(e.EntityID),
		Metadata:   redactMetadata(e.Metadata),
	}, nil
}

func orSystem(value string) string {
	if value == "" {
		return systemActor
	}
	return value
}

// sensitiveKeys are substrings of metadata keys whose values never reach the audit table.
var sensitiveKeys = []string{"email", "token", "code", "password"}

func redactMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(metadata))
	for key, value := range metadata {
		out[key] = value
		lower := strings.ToLower(key)
		for _, marker := range sensitiveKeys {
			if strings.Contains(lower, marker) {
				out[key] = "***"
				break
			}
		}
	}
	return out
}
