package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/internal/repository"
)

// ChallengeService exposes challenges to competitors.
type ChallengeService interface {
	List(ctx context.Context, userID uint, role string) ([]dto.ChallengeView, error)
	GetInfo(ctx context.Context, challengeID, userID uint, role string) (dto.ChallengeView, error)
}

type challengeService struct {
	challenges  repository.ChallengeRepository
	instances   repository.RunningChallengeRepository
	submissions repository.SubmissionRepository
	baseDomain  string
	logger      zerolog.Logger
}

// NewChallengeService constructs the competitor facing challenge reader.
func NewChallengeService(
	challengeRepo repository.ChallengeRepository,
	instanceRepo repository.RunningChallengeRepository,
	submissionRepo repository.SubmissionRepository,
	baseDomain string,
	logger zerolog.Logger,
) ChallengeService {
	return &challengeService{
		challenges:  challengeRepo,
		instances:   instanceRepo,
		submissions: submissionRepo,
		baseDomain:  baseDomain,
		logger:      logger.With().Str("component", "challenge_service").Logger(),
	}
}

func (s *challengeService) List(ctx context.Context, userID uint, role string) ([]dto.ChallengeView, error) {
	challenges, err := s.challenges.List(ctx, role == models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if len(challenges) == 0 {
		return []dto.ChallengeView{}, nil
	}

	ids := make([]uint, 0, len(challenges))
	for _, challenge := range challenges {
		ids = append(ids, challenge.ID)
	}

	dynamics, err := s.challenges.ListDynamic(ctx, ids)
	if err != nil {
		return nil, err
	}
	solves, err := s.submissions.CountSolves(ctx, ids)
	if err != nil {
		return nil, err
	}

	solved := map[uint]bool{}
	running := map[uint]models.RunningChallenge{}
	if userID != 0 {
		if solved, err = s.submissions.SolvedChallengeIDs(ctx, userID); err != nil {
			return nil, err
		}
		instances, err := s.instances.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, instance := range instances {
			running[instance.ChallengeID] = instance
		}
	}

	views := make([]dto.ChallengeView, 0, len(challenges))
	for _, challenge := range challenges {
		var dynamic *models.DynamicChallenge
		if row, ok := dynamics[challenge.ID]; ok {
			dynamic = &row
		}
		var instance *models.RunningChallenge
		if row, ok := running[challenge.ID]; ok {
			instance = &row
		}

		views = append(views, s.buildView(challenge, dynamic, solves[challenge.ID], solved[challenge.ID], instance))
	}

	return views, nil
}

// GetInfo returns the challenge as seen by userID. Links are populated only while the
// user has a running instance.
func (s *challengeService) GetInfo(ctx context.Context, challengeID, userID uint, role string) (dto.ChallengeView, error) {
	challenge, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChallengeView{}, ErrChallengeNotFound
		}
		return dto.ChallengeView{}, err
	}
	if challenge.Hidden && role != models.RoleAdmin {
		return dto.ChallengeView{}, ErrChallengeNotFound
	}

	dynamic, err := s.challenges.GetDynamic(ctx, challengeID)
	if err != nil {
		return dto.ChallengeView{}, err
	}

	solves, err := s.submissions.CountSolves(ctx, []uint{challengeID})
	if err != nil {
		return dto.ChallengeView{}, err
	}

	var (
		isSolved bool
		instance *models.RunningChallenge
	)
	if userID != 0 {
		if isSolved, err = s.submissions.HasSolved(ctx, challengeID, userID); err != nil {
			return dto.ChallengeView{}, err
		}
		if instance, err = s.instances.FindForUser(ctx, challengeID, userID); err != nil {
			return dto.ChallengeView{}, err
		}
	}

	return s.buildView(challenge, dynamic, solves[challengeID], isSolved, instance), nil
}

func (s *challengeService) buildView(challenge models.Challenge, dynamic *models.DynamicChallenge, solves int64, isSolved bool, instance *models.RunningChallenge) dto.ChallengeView {
	view := dto.ChallengeView{
		ID:          challenge.ID,
		Name:        challenge.Name,
		Description: challenge.Description,
		Category:    challenge.Category,
		Author:      challenge.Author,
		Value: dto.ChallengeValue{
			Type:   challenge.Type,
			Points: CurrentValue(challenge, dynamic, solves),
		},
		Hints:       challenge.HintList(),
		Files:       dto.NewChallengeFileResponses(challenge.FileList()),
		Solves:      solves,
		Deployable:  challenge.Deployable(),
		DynamicFlag: challenge.DynamicFlag,
		IsSolved:    isSolved,
	}
	if challenge.Type == models.ChallengeTypeDynamic {
		view.Value.DecayFunction = dto.NewDecayFunction(dynamic)
	}

	if instance == nil {
		return view
	}

	template, err := challenge.DeployTemplate()
	if err != nil {
		s.logger.Warn().Err(err).Uint("challenge_id", challenge.ID).Msg("stored deploy template is unreadable")
	}

	startTime := instance.StartTime
	endTime := instance.EndTime
	view.Links = GenerateContainerLinks(template, instance.ID, s.baseDomain)
	view.InstanceName = instance.ID
	view.StartTime = &startTime
	view.EndTime = &endTime

	return view
}
