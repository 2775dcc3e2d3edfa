package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/internal/observability"
	"github.com/noah-isme/ctf-go-api/internal/repository"
	"github.com/noah-isme/ctf-go-api/pkg/orchestrator"
)

const (
	maxInstanceIDAttempts = 5
	reconcileBatchSize    = 100
)

var (
	// ErrChallengeNotFound indicates the challenge does not exist or is hidden from the caller.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrInstanceNotFound indicates the instance does not exist or belongs to someone else.
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrDuplicateInstance indicates the user already runs an instance of the challenge.
	ErrDuplicateInstance = errors.New("instance already running")
	// ErrInstanceForbidden indicates the caller does not own the instance.
	ErrInstanceForbidden = errors.New("instance belongs to another user")
	// ErrNoDeployment indicates the challenge has no containers to start.
	ErrNoDeployment = errors.New("challenge has no deployment")
	// ErrOrchestratorUnavailable indicates the orchestrator call failed.
	ErrOrchestratorUnavailable = errors.New("orchestrator unavailable")
	// ErrInstanceIDExhausted indicates no free instance id was found.
	ErrInstanceIDExhausted = errors.New("could not allocate instance id")
)

// InstanceSettings configures instance lifecycle behaviour.
type InstanceSettings struct {
	Deploy     DeploySettings
	TTL        time.Duration
	FlagPrefix string
}

// InstanceService manages per-user challenge deployments.
type InstanceService interface {
	Start(ctx context.Context, challengeID, userID uint, role string) (dto.InstanceResponse, error)
	Stop(ctx context.Context, instanceID string) error
	StopForUser(ctx context.Context, instanceID string, userID uint) error
	ListForUser(ctx context.Context, userID uint) ([]dto.InstanceResponse, error)
	CompleteTeardown(ctx context.Context, instanceID string) error
	ReapExpired(ctx context.Context) (int, error)
	RetryTeardowns(ctx context.Context) (int, error)
}

type instanceService struct {
	challenges   repository.ChallengeRepository
	instances    repository.RunningChallengeRepository
	teardowns    repository.TeardownRepository
	orchestrator orchestrator.Client
	registry     InstanceRegistry
	events       EventPublisher
	settings     InstanceSettings
	logger       zerolog.Logger
	tracer       trace.Tracer

	now   func() time.Time
	newID func() (string, error)
}

// NewInstanceService constructs the instance lifecycle manager.
func NewInstanceService(
	challengeRepo repository.ChallengeRepository,
	instanceRepo repository.RunningChallengeRepository,
	teardownRepo repository.TeardownRepository,
	client orchestrator.Client,
	registry InstanceRegistry,
	events EventPublisher,
	settings InstanceSettings,
	logger zerolog.Logger,
) InstanceService {
	if registry == nil {
		registry = noopInstanceRegistry{}
	}
	if events == nil {
		events = noopEventPublisher{}
	}
	if settings.TTL <= 0 {
		settings.TTL = time.Hour
	}

	return &instanceService{
		challenges:   challengeRepo,
		instances:    instanceRepo,
		teardowns:    teardownRepo,
		orchestrator: client,
		registry:     registry,
		events:       events,
		settings:     settings,
		logger:       logger.With().Str("component", "instance_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/ctf-go-api/internal/service/instance"),
		now:          time.Now,
		newID:        GenerateInstanceID,
	}
}

// Start inserts the instance row before provisioning. A provisioning failure removes the row again.
func (s *instanceService) Start(ctx context.Context, challengeID, userID uint, role string) (dto.InstanceResponse, error) {
	if userID == 0 {
		return dto.InstanceResponse{}, ErrUnauthorized
	}

	ctx, span := s.tracer.Start(ctx, "instances.start", trace.WithAttributes(
		attribute.Int64("ctf.challenge_id", int64(challengeID)),
		attribute.Int64("ctf.user_id", int64(userID)),
	))
	defer span.End()

	challenge, err := s.visibleChallenge(ctx, challengeID, role)
	if err != nil {
		return dto.InstanceResponse{}, err
	}

	template, err := challenge.DeployTemplate()
	if err != nil {
		return dto.InstanceResponse{}, fmt.Errorf("decode deploy template: %w", err)
	}
	if len(template.Containers) == 0 {
		return dto.InstanceResponse{}, ErrNoDeployment
	}
	if err := ValidateDeployTemplate(template); err != nil {
		return dto.InstanceResponse{}, err
	}

	existing, err := s.instances.FindForUser(ctx, challengeID, userID)
	if err != nil {
		return dto.InstanceResponse{}, err
	}
	if existing != nil {
		return dto.InstanceResponse{}, ErrDuplicateInstance
	}

	flag := challenge.Flag
	if challenge.DynamicFlag {
		flag = GenerateInstanceFlag(s.settings.FlagPrefix)
	}

	instance, values, err := s.insertInstance(ctx, challenge, template, userID, flag)
	if err != nil {
		return dto.InstanceResponse{}, err
	}

	if err := s.orchestrator.Provision(ctx, instance.ID, values); err != nil {
		observability.InstanceEvents().WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "provision failed")

		rollbackCtx := context.WithoutCancel(ctx)
		if deleteErr := s.instances.Delete(rollbackCtx, instance.ID); deleteErr != nil {
			s.logger.Error().Err(deleteErr).Str("instance_id", instance.ID).Msg("failed to roll back instance row")
		}
		if releaseErr := s.registry.Release(rollbackCtx, instance.ID); releaseErr != nil {
			s.logger.Warn().Err(releaseErr).Str("instance_id", instance.ID).Msg("failed to release instance id")
		}
		if teardownErr := s.orchestrator.Teardown(rollbackCtx, instance.ID); teardownErr != nil {
			s.queueTeardown(rollbackCtx, instance.ID, models.TeardownReasonStopped, teardownErr)
		}

		return dto.InstanceResponse{}, fmt.Errorf("%w: %v", ErrOrchestratorUnavailable, err)
	}

	observability.InstanceEvents().WithLabelValues("started").Inc()
	s.events.Publish(ctx, Event{
		Kind:        EventInstanceStarted,
		ChallengeID: challengeID,
		UserID:      userID,
		InstanceID:  instance.ID,
		OccurredAt:  instance.StartTime,
	})

	s.logger.Info().
		Str("instance_id", instance.ID).
		Uint("challenge_id", challengeID).
		Uint("user_id", userID).
		Time("end_time", instance.EndTime).
		Msg("challenge instance started")

	return s.toResponse(instance, template), nil
}

func (s *instanceService) insertInstance(ctx context.Context, challenge models.Challenge, template models.DeployTemplate, userID uint, flag string) (models.RunningChallenge, orchestrator.Values, error) {
	for attempt := 0; attempt < maxInstanceIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return models.RunningChallenge{}, orchestrator.Values{}, err
		}

		reserved, err := s.registry.Reserve(ctx, id, userID, s.settings.TTL)
		if err != nil {
			return models.RunningChallenge{}, orchestrator.Values{}, err
		}
		if !reserved {
			continue
		}

		values, err := BuildDeployValues(template, id, flag, s.settings.Deploy)
		if err != nil {
			_ = s.registry.Release(ctx, id)
			return models.RunningChallenge{}, orchestrator.Values{}, err
		}

		now := s.now().UTC()
		instance := models.RunningChallenge{
			ID:          id,
			ChallengeID: challenge.ID,
			UserID:      userID,
			Flag:        flag,
			StartTime:   now,
			EndTime:     now.Add(s.settings.TTL),
		}

		err = s.instances.Create(ctx, &instance)
		if err == nil {
			return instance, values, nil
		}

		_ = s.registry.Release(ctx, id)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.RunningChallenge{}, orchestrator.Values{}, err
		}

		// The pair constraint and the id primary key both surface as duplicates.
		existing, findErr := s.instances.FindForUser(ctx, challenge.ID, userID)
		if findErr != nil {
			return models.RunningChallenge{}, orchestrator.Values{}, findErr
		}
		if existing != nil {
			return models.RunningChallenge{}, orchestrator.Values{}, ErrDuplicateInstance
		}

		s.logger.Debug().Str("instance_id", id).Msg("instance id collision, retrying")
	}

	return models.RunningChallenge{}, orchestrator.Values{}, ErrInstanceIDExhausted
}

// Stop tears the instance down and then removes its row. Stopping an unknown instance succeeds.
func (s *instanceService) Stop(ctx context.Context, instanceID string) error {
	return s.stop(ctx, instanceID, models.TeardownReasonStopped)
}

func (s *instanceService) stop(ctx context.Context, instanceID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "instances.stop", trace.WithAttributes(
		attribute.String("ctf.instance_id", instanceID),
		attribute.String("ctf.reason", reason),
	))
	defer span.End()

	if err := s.orchestrator.Teardown(ctx, instanceID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "teardown failed")
		return fmt.Errorf("%w: %v", ErrOrchestratorUnavailable, err)
	}

	instance, err := s.instances.GetByID(ctx, instanceID)
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err := s.instances.Delete(ctx, instanceID); err != nil {
		return err
	}
	if err := s.teardowns.Delete(ctx, instanceID); err != nil {
		s.logger.Warn().Err(err).Str("instance_id", instanceID).Msg("failed to clear pending teardown")
	}
	if err := s.registry.Release(ctx, instanceID); err != nil {
		s.logger.Warn().Err(err).Str("instance_id", instanceID).Msg("failed to release instance id")
	}

	if !found {
		return nil
	}

	event := "stopped"
	if reason == models.TeardownReasonExpired {
		event = "expired"
	}
	observability.InstanceEvents().WithLabelValues(event).Inc()
	s.events.Publish(ctx, Event{
		Kind:        EventInstanceStopped,
		ChallengeID: instance.ChallengeID,
		UserID:      instance.UserID,
		InstanceID:  instanceID,
		Reason:      reason,
	})

	s.logger.Info().Str("instance_id", instanceID).Str("reason", reason).Msg("challenge instance stopped")
	return nil
}

// StopForUser stops an instance owned by userID. A missing instance is treated as already stopped.
func (s *instanceService) StopForUser(ctx context.Context, instanceID string, userID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}

	instance, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if instance.UserID != userID {
		return ErrInstanceForbidden
	}

	return s.Stop(ctx, instanceID)
}

func (s *instanceService) ListForUser(ctx context.Context, userID uint) ([]dto.InstanceResponse, error) {
	instances, err := s.instances.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.InstanceResponse, 0, len(instances))
	for _, instance := range instances {
		challenge, err := s.challenges.GetByID(ctx, instance.ChallengeID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		template, err := challenge.DeployTemplate()
		if err != nil {
			s.logger.Warn().Err(err).Uint("challenge_id", instance.ChallengeID).Str("instance_id", instance.ID).Msg("stored deploy template is unreadable")
		}
		responses = append(responses, s.toResponse(instance, template))
	}

	return responses, nil
}

// CompleteTeardown removes the containers of an instance whose row is already gone
// and clears its pending teardown. Failures are recorded for the reaper.
func (s *instanceService) CompleteTeardown(ctx context.Context, instanceID string) error {
	if err := s.orchestrator.Teardown(ctx, instanceID); err != nil {
		s.queueTeardown(ctx, instanceID, models.TeardownReasonSolved, err)
		return fmt.Errorf("%w: %v", ErrOrchestratorUnavailable, err)
	}

	if err := s.teardowns.Delete(ctx, instanceID); err != nil {
		return err
	}
	if err := s.registry.Release(ctx, instanceID); err != nil {
		s.logger.Warn().Err(err).Str("instance_id", instanceID).Msg("failed to release instance id")
	}

	return nil
}

// ReapExpired stops every instance past its end time.
func (s *instanceService) ReapExpired(ctx context.Context) (int, error) {
	expired, err := s.instances.ListExpired(ctx, s.now().UTC(), reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	stopped := 0
	var errs []error
	for _, instance := range expired {
		if err := s.stop(ctx, instance.ID, models.TeardownReasonExpired); err != nil {
			observability.ReconcileActions().WithLabelValues("expire", "error").Inc()
			errs = append(errs, fmt.Errorf("stop %s: %w", instance.ID, err))
			continue
		}
		observability.ReconcileActions().WithLabelValues("expire", "ok").Inc()
		stopped++
	}

	return stopped, errors.Join(errs...)
}

// RetryTeardowns re-issues teardowns that previously failed.
func (s *instanceService) RetryTeardowns(ctx context.Context) (int, error) {
	pending, err := s.teardowns.List(ctx, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	completed := 0
	var errs []error
	for _, item := range pending {
		if err := s.CompleteTeardown(ctx, item.InstanceID); err != nil {
			observability.ReconcileActions().WithLabelValues("teardown", "error").Inc()
			errs = append(errs, fmt.Errorf("teardown %s: %w", item.InstanceID, err))
			continue
		}
		observability.ReconcileActions().WithLabelValues("teardown", "ok").Inc()
		completed++
	}

	return completed, errors.Join(errs...)
}

func (s *instanceService) queueTeardown(ctx context.Context, instanceID, reason string, cause error) {
	if err := s.teardowns.Enqueue(ctx, instanceID, reason); err != nil {
		s.logger.Error().Err(err).Str("instance_id", instanceID).Msg("failed to queue teardown")
		return
	}
	if err := s.teardowns.MarkFailed(ctx, instanceID, cause.Error()); err != nil {
		s.logger.Warn().Err(err).Str("instance_id", instanceID).Msg("failed to record teardown failure")
	}
	s.logger.Warn().Err(cause).Str("instance_id", instanceID).Msg("teardown deferred to reaper")
}

func (s *instanceService) visibleChallenge(ctx context.Context, challengeID uint, role string) (models.Challenge, error) {
	challenge, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Challenge{}, ErrChallengeNotFound
		}
		return models.Challenge{}, err
	}

	if challenge.Hidden && role != models.RoleAdmin {
		return models.Challenge{}, ErrChallengeNotFound
	}

	return challenge, nil
}

func (s *instanceService) toResponse(instance models.RunningChallenge, template models.DeployTemplate) dto.InstanceResponse {
	return dto.InstanceResponse{
		ID:          instance.ID,
		ChallengeID: instance.ChallengeID,
		StartTime:   instance.StartTime,
		EndTime:     instance.EndTime,
		Links:       GenerateContainerLinks(template, instance.ID, s.settings.Deploy.BaseDomain),
	}
}
