package concept

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/internal/repository"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// MaxConcepts 每个组合的概念上限
const MaxConcepts = 5

var (
	ErrInvalidDefinition = errors.New("invalid concept definition")
	ErrNotFound          = errors.New("concept definition not found")
)

// Repository 概念定义的持久化
type Repository interface {
	List(ctx context.Context) ([]models.CustomConceptDefinition, error)
	GetBySlot(ctx context.Context, slot int) (*models.CustomConceptDefinition, error)
	Upsert(ctx context.Context, def *models.CustomConceptDefinition) error
	DeleteBySlot(ctx context.Context, slot int) error
}

// Input 新建或更新请求
type Input struct {
	DisplayOrder     int      `json:"displayOrder"`
	RelationshipName string   `json:"relationshipName"`
	Concepts         []string `json:"concepts"`
}

type Service struct {
	repo   Repository
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, logger: log.Named("concept")}
}

func (s *Service) List(ctx context.Context) ([]models.CustomConceptDefinition, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, slot int) (*models.CustomConceptDefinition, error) {
	def, err := s.repo.GetBySlot(ctx, slot)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return def, err
}

// Upsert 槽位唯一，因此总数不会超过 MaxConceptSlots
func (s *Service) Upsert(ctx context.Context, in Input) (*models.CustomConceptDefinition, error) {
	concepts, err := validate(in)
	if err != nil {
		return nil, err
	}

	def := &models.CustomConceptDefinition{
		DisplayOrder:     in.DisplayOrder,
		RelationshipName: strings.TrimSpace(in.RelationshipName),
		Concepts:         strings.Join(concepts, ";"),
	}
	if err := s.repo.Upsert(ctx, def); err != nil {
		return nil, err
	}

	s.logger.Info("Concept definition saved",
		logger.Int("slot", def.DisplayOrder),
		logger.String("relationship", def.RelationshipName),
		logger.Strings("concepts", concepts),
	)
	return s.Get(ctx, def.DisplayOrder)
}

func (s *Service) Delete(ctx context.Context, slot int) error {
	err := s.repo.DeleteBySlot(ctx, slot)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err == nil {
		s.logger.Info("Concept definition deleted", logger.Int("slot", slot))
	}
	return err
}

func validate(in Input) ([]string, error) {
	var errs []error
	if in.DisplayOrder < 1 || in.DisplayOrder > models.MaxConceptSlots {
		errs = append(errs, fmt.Errorf("displayOrder must be between 1 and %d", models.MaxConceptSlots))
	}
	if strings.TrimSpace(in.RelationshipName) == "" {
		errs = append(errs, errors.New("relationshipName must not be blank"))
	}

	var concepts []string
	seen := make(map[string]bool)
	for _, c := range in.Concepts {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if strings.Contains(c, ";") {
			errs = append(errs, fmt.Errorf("concept %q must not contain ';'", c))
			continue
		}
		seen[c] = true
		concepts = append(concepts, c)
	}
	if len(concepts) == 0 {
		errs = append(errs, errors.New("at least one concept is required"))
	}
	if len(concepts) > MaxConcepts {
		errs = append(errs, fmt.Errorf("at most %d concepts are allowed", MaxConcepts))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, errors.Join(errs...))
	}
	return concepts, nil
}
