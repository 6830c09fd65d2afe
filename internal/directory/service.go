package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// Service is the lookup and join layer over the directory store.
type Service struct {
	store  *Store
	logger *logging.Logger
}

func NewService(store *Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger}
}

// JoinInput is a customer joining through a manager's invite slug.
type JoinInput struct {
	Slug  string
	Name  string
	Phone string
}

func (in *JoinInput) validate() error {
	in.Slug = strings.TrimSpace(strings.ToLower(in.Slug))
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	switch {
	case in.Slug == "":
		return fmt.Errorf("directory: slug is required: %w", apperrors.ErrValidation)
	case in.Name == "":
		return fmt.Errorf("directory: name is required: %w", apperrors.ErrValidation)
	case in.Phone == "":
		return fmt.Errorf("directory: phone is required: %w", apperrors.ErrValidation)
	}
	return nil
}

// JoinBySlug attaches a customer to the manager behind the slug. Phone is
// the identity key per manager, so a returning customer is reactivated
// under their existing record rather than duplicated.
func (s *Service) JoinBySlug(ctx context.Context, in JoinInput) (*Manager, *Customer, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	manager, err := s.store.GetManagerBySlug(ctx, in.Slug)
	if err != nil {
		return nil, nil, err
	}
	customer, err := s.store.UpsertCustomer(ctx, &Customer{
		ManagerID: manager.ID,
		Name:      in.Name,
		Phone:     in.Phone,
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("directory: customer joined",
		"manager_id", manager.ID, "customer_id", customer.ID, "slug", in.Slug)
	return manager, customer, nil
}

// Manager fetches a manager account.
func (s *Service) Manager(ctx context.Context, id uuid.UUID) (*Manager, error) {
	return s.store.GetManagerByID(ctx, id)
}

// Customer fetches a customer record.
func (s *Service) Customer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return s.store.GetCustomerByID(ctx, id)
}

// ManagerContact resolves the contact line the auto-reply bot hands to
// customers during a handoff or confirmation.
func (s *Service) ManagerContact(ctx context.Context, managerID uuid.UUID) (string, string, error) {
	m, err := s.store.GetManagerByID(ctx, managerID)
	if err != nil {
		return "", "", err
	}
	name := m.BusinessName
	if name == "" {
		name = m.Name
	}
	return name, m.Phone, nil
}
