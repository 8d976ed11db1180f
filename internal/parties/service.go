package parties

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/feedflow/feedflow/internal/shared"
)

// Repository abstracts party persistence.
type Repository interface {
	Create(ctx context.Context, p Party) (int64, error)
	Get(ctx context.Context, id int64) (Party, error)
	List(ctx context.Context, search string, limit, offset int) ([]Party, int, error)
	Update(ctx context.Context, p Party) error
}

// TxRepository exposes party operations used inside an order transaction.
type TxRepository interface {
	LockParty(ctx context.Context, id int64) (Party, error)
	AdjustLimit(ctx context.Context, id int64, delta int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides party CRUD.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService creates a new service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create registers a party.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Party, error) {
	if err := actor.Require(shared.PermPartyEdit); err != nil {
		return Party{}, err
	}
	input.CompanyName = strings.TrimSpace(input.CompanyName)
	input.ContactPersonNumber = strings.TrimSpace(input.ContactPersonNumber)
	if input.CompanyName == "" || input.ContactPersonNumber == "" {
		return Party{}, shared.Validationf("company name and contact number required")
	}
	if input.Limit < 0 {
		return Party{}, shared.Validationf("limit must not be negative")
	}
	p := Party{
		CompanyName:         input.CompanyName,
		ContactPersonNumber: input.ContactPersonNumber,
		Address:             strings.TrimSpace(input.Address),
		Limit:               input.Limit,
		Status:              StatusActive,
		CreatedBy:           actor.ID,
	}
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return Party{}, fmt.Errorf("create party: %w", err)
	}
	p.ID = id
	s.record(ctx, actor, "party.create", id, map[string]any{"limit": p.Limit})
	return p, nil
}

// Get returns a party by id.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Party, error) {
	if err := actor.Require(shared.PermPartyView); err != nil {
		return Party{}, err
	}
	return s.repo.Get(ctx, id)
}

// List returns a page of parties matching search.
func (s *Service) List(ctx context.Context, actor shared.Actor, search string, page, perPage int) ([]Party, shared.Pagination, error) {
	if err := actor.Require(shared.PermPartyView); err != nil {
		return nil, shared.Pagination{}, err
	}
	page, perPage = shared.NormalizePage(page, perPage)
	items, total, err := s.repo.List(ctx, strings.TrimSpace(search), perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// Update edits the live record. Orders keep the snapshot taken when they were placed.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Party, error) {
	if err := actor.Require(shared.PermPartyEdit); err != nil {
		return Party{}, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Party{}, err
	}
	changes := map[string]any{}
	if input.CompanyName != nil {
		p.CompanyName = strings.TrimSpace(*input.CompanyName)
		changes["company_name"] = p.CompanyName
	}
	if input.ContactPersonNumber != nil {
		p.ContactPersonNumber = strings.TrimSpace(*input.ContactPersonNumber)
		changes["contact_person_number"] = p.ContactPersonNumber
	}
	if input.Address != nil {
		p.Address = strings.TrimSpace(*input.Address)
		changes["address"] = p.Address
	}
	if input.Limit != nil {
		if *input.Limit < 0 {
			return Party{}, shared.Validationf("limit must not be negative")
		}
		p.Limit = *input.Limit
		changes["limit"] = p.Limit
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return Party{}, shared.Validationf("unknown party status %q", *input.Status)
		}
		p.Status = *input.Status
		changes["status"] = p.Status
	}
	if p.CompanyName == "" || p.ContactPersonNumber == "" {
		return Party{}, shared.Validationf("company name and contact number required")
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return Party{}, fmt.Errorf("update party: %w", err)
	}
	s.record(ctx, actor, "party.update", id, changes)
	return p, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Role:     actor.Role,
		Action:   action,
		Entity:   "party",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
