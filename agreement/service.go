package agreement

import (
	"context"

	"caseflow/db"
	"caseflow/identity"
	"caseflow/steptemplate"
)

// TemplateResolver is the part of steptemplate.Resolver the service needs.
type TemplateResolver interface {
	Resolve(ctx context.Context, q db.Querier, agreementID, caseType, stage string) (steptemplate.Template, error)
	List(ctx context.Context, q db.Querier, agreementID string) ([]steptemplate.Template, error)
}

type Reader interface {
	GetForOrg(ctx context.Context, q db.Querier, orgID, id string) (Agreement, error)
	ListForOrg(ctx context.Context, q db.Querier, orgID string) ([]Agreement, error)
}

// Service answers configuration questions about an organization's
// agreements.
type Service struct {
	q         db.Querier
	repo      Reader
	templates TemplateResolver
}

func NewService(q db.Querier, repo Reader, templates TemplateResolver) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{q: q, repo: repo, templates: templates}
}

func (s *Service) List(ctx context.Context, actor identity.Actor) ([]Agreement, error) {
	if err := actor.Require(); err != nil {
		return nil, err
	}
	return s.repo.ListForOrg(ctx, s.q, actor.OrganizationID)
}

// InitialStep resolves the template a new case of caseType at stage would
// start at.
func (s *Service) InitialStep(ctx context.Context, actor identity.Actor, agreementID, caseType, stage string) (steptemplate.Template, error) {
	if err := actor.Require(); err != nil {
		return steptemplate.Template{}, err
	}
	if _, err := s.repo.GetForOrg(ctx, s.q, actor.OrganizationID, agreementID); err != nil {
		return steptemplate.Template{}, err
	}
	return s.templates.Resolve(ctx, s.q, agreementID, caseType, stage)
}

func (s *Service) Templates(ctx context.Context, actor identity.Actor, agreementID string) ([]steptemplate.Template, error) {
	if err := actor.Require(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetForOrg(ctx, s.q, actor.OrganizationID, agreementID); err != nil {
		return nil, err
	}
	return s.templates.List(ctx, s.q, agreementID)
}
