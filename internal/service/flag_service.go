package service

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/internal/observability"
	"github.com/noah-isme/ctf-go-api/internal/repository"
)

var (
	// ErrUnauthorized indicates the caller is not authenticated.
	ErrUnauthorized = errors.New("authentication required")
	// ErrInstanceRequired indicates a per-instance flag was submitted without its instance.
	ErrInstanceRequired = errors.New("instance id required for this challenge")
)

// Submitter identifies the authenticated caller of a flag submission.
type Submitter struct {
	UserID uint
	TeamID *uint
	Role   string
}

// FlagService judges flag submissions.
type FlagService interface {
	Submit(ctx context.Context, challengeID uint, payload dto.FlagSubmitRequest, submitter Submitter) (dto.FlagSubmitResponse, error)
}

type flagService struct {
	challenges  repository.ChallengeRepository
	instances   repository.RunningChallengeRepository
	submissions repository.SubmissionRepository
	lifecycle   InstanceService
	events      EventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewFlagService constructs the flag judge.
func NewFlagService(
	challengeRepo repository.ChallengeRepository,
	instanceRepo repository.RunningChallengeRepository,
	submissionRepo repository.SubmissionRepository,
	lifecycle InstanceService,
	events EventPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) FlagService {
	if events == nil {
		events = noopEventPublisher{}
	}

	return &flagService{
		challenges:  challengeRepo,
		instances:   instanceRepo,
		submissions: submissionRepo,
		lifecycle:   lifecycle,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "flag_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/ctf-go-api/internal/service/flag"),
	}
}

// Submit compares the answer with the instance flag when an instance is given and with
// the challenge flag otherwise. Every attempt is recorded. A correct instance answer
// removes the instance in the same transaction as the submission insert; the
// orchestrator teardown that follows is retried by the reaper if it fails.
func (s *flagService) Submit(ctx context.Context, challengeID uint, payload dto.FlagSubmitRequest, submitter Submitter) (dto.FlagSubmitResponse, error) {
	if submitter.UserID == 0 {
		return dto.FlagSubmitResponse{}, ErrUnauthorized
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.FlagSubmitResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "flags.submit", trace.WithAttributes(
		attribute.Int64("ctf.challenge_id", int64(challengeID)),
		attribute.Int64("ctf.user_id", int64(submitter.UserID)),
		attribute.Bool("ctf.instance_bound", payload.InstanceID != ""),
	))
	defer span.End()

	challenge, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FlagSubmitResponse{}, ErrChallengeNotFound
		}
		return dto.FlagSubmitResponse{}, err
	}
	if challenge.Hidden && submitter.Role != models.RoleAdmin {
		return dto.FlagSubmitResponse{}, ErrChallengeNotFound
	}

	expected := challenge.Flag
	if payload.InstanceID != "" {
		instance, err := s.instances.GetByID(ctx, payload.InstanceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.FlagSubmitResponse{}, ErrInstanceNotFound
			}
			return dto.FlagSubmitResponse{}, err
		}
		if instance.UserID != submitter.UserID || instance.ChallengeID != challengeID {
			return dto.FlagSubmitResponse{}, ErrInstanceNotFound
		}
		expected = instance.Flag
	} else if challenge.DynamicFlag {
		return dto.FlagSubmitResponse{}, ErrInstanceRequired
	}

	correct := subtle.ConstantTimeCompare([]byte(expected), []byte(payload.Flag)) == 1
	span.SetAttributes(attribute.Bool("ctf.correct", correct))

	submission := models.Submission{
		UserID:      submitter.UserID,
		TeamID:      submitter.TeamID,
		ChallengeID: challengeID,
		InstanceID:  payload.InstanceID,
		Answer:      payload.Flag,
		Correct:     correct,
	}

	if correct && payload.InstanceID != "" {
		if err := s.submissions.RecordSolve(ctx, &submission, payload.InstanceID); err != nil {
			return dto.FlagSubmitResponse{}, err
		}
		if err := s.lifecycle.CompleteTeardown(ctx, payload.InstanceID); err != nil {
			s.logger.Warn().Err(err).Str("instance_id", payload.InstanceID).Msg("instance teardown deferred after solve")
		}
	} else if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.FlagSubmitResponse{}, err
	}

	result := "incorrect"
	if correct {
		result = "correct"
		s.events.Publish(ctx, Event{
			Kind:        EventChallengeSolved,
			ChallengeID: challengeID,
			UserID:      submitter.UserID,
			TeamID:      submitter.TeamID,
			InstanceID:  payload.InstanceID,
			OccurredAt:  submission.CreatedAt,
		})
	}
	observability.FlagSubmissions().WithLabelValues(result).Inc()

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("challenge_id", challengeID).
		Uint("user_id", submitter.UserID).
		Bool("correct", correct).
		Msg("flag submission judged")

	return dto.FlagSubmitResponse{ChallengeID: challengeID, Correct: correct}, nil
}
