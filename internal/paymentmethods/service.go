// Package paymentmethods lists, saves and detaches a user's saved cards.
package paymentmethods

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

// Service orchestrates card-on-file reads and writes.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]PaymentMethodDTO, error)
	Detach(ctx context.Context, userID uuid.UUID, externalID string) error
	// SaveFromGateway persists a method confirmed by the gateway. Existing
	// rows for the same external id are left untouched.
	SaveFromGateway(ctx context.Context, userID uuid.UUID, externalID string) (*models.PaymentMethod, bool, error)
}

// PaymentMethodDTO carries display-only card details.
type PaymentMethodDTO struct {
	ID       string `json:"id"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

type cardGateway interface {
	GetPaymentMethodDetails(ctx context.Context, id string) (*stripe.PaymentMethodDetails, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]stripe.PaymentMethodDetails, error)
	DetachPaymentMethod(ctx context.Context, id string) error
}

// ServiceParams groups dependencies for the payment method service.
type ServiceParams struct {
	Repo    Repository
	Users   catalog.Gateway
	Gateway cardGateway
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	users   catalog.Gateway
	gateway cardGateway
	logg    *logger.Logger
}

// NewService constructs a payment method service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method repo required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user gateway required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		repo:    params.Repo,
		users:   params.Users,
		gateway: params.Gateway,
		logg:    params.Logger,
	}, nil
}

// List returns the gateway's view when the user has a gateway customer and
// falls back to locally saved rows otherwise.
func (s *service) List(ctx context.Context, userID uuid.UUID) ([]PaymentMethodDTO, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if customerID := customerIDOf(user); customerID != "" {
		details, err := s.gateway.ListPaymentMethods(ctx, customerID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "list payment methods")
		}
		out := make([]PaymentMethodDTO, 0, len(details))
		for _, d := range details {
			out = append(out, PaymentMethodDTO{ID: d.ID, Brand: d.Brand, Last4: d.Last4, ExpMonth: d.ExpMonth, ExpYear: d.ExpYear})
		}
		return out, nil
	}

	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment methods")
	}
	out := make([]PaymentMethodDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out, nil
}

func (s *service) Detach(ctx context.Context, userID uuid.UUID, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method id is required")
	}

	local, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment method")
	}
	switch {
	case local != nil && local.UserID != userID:
		return pkgerrors.New(pkgerrors.CodeForbidden, "payment method belongs to another user")
	case local == nil:
		owned, err := s.ownedByCustomer(ctx, userID, externalID)
		if err != nil {
			return err
		}
		if !owned {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
		}
	}

	if err := s.gateway.DetachPaymentMethod(ctx, externalID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "detach payment method")
	}
	if local != nil {
		if err := s.repo.DeleteByExternalID(ctx, externalID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payment method")
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": userID.String(), "payment_method_id": externalID})
	s.logg.Info(logCtx, "payment_method.detached")
	return nil
}

func (s *service) ownedByCustomer(ctx context.Context, userID uuid.UUID, externalID string) (bool, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return false, err
	}
	customerID := customerIDOf(user)
	if customerID == "" {
		return false, nil
	}
	details, err := s.gateway.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "list payment methods")
	}
	for _, d := range details {
		if d.ID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) SaveFromGateway(ctx context.Context, userID uuid.UUID, externalID string) (*models.PaymentMethod, bool, error) {
	existing, err := s.repo.FindByExternalID(ctx, externalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment method")
	}

	details, err := s.gateway.GetPaymentMethodDetails(ctx, externalID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "fetch payment method details")
	}
	method := buildPaymentMethod(userID, details)
	if err := s.repo.Create(ctx, method); err != nil {
		if db.IsUniqueViolation(err, "") {
			stored, findErr := s.repo.FindByExternalID(ctx, externalID)
			if findErr == nil {
				return stored, false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment method")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": userID.String(), "payment_method_id": externalID})
	s.logg.Info(logCtx, "payment_method.saved")
	return method, true, nil
}

func buildPaymentMethod(userID uuid.UUID, details *stripe.PaymentMethodDetails) *models.PaymentMethod {
	return &models.PaymentMethod{
		UserID:           userID,
		Provider:         "stripe",
		ExternalMethodID: details.ID,
		Brand:            stringPointer(details.Brand),
		Last4:            stringPointer(details.Last4),
		ExpMonth:         intPointer(details.ExpMonth),
		ExpYear:          intPointer(details.ExpYear),
	}
}

func toDTO(row models.PaymentMethod) PaymentMethodDTO {
	dto := PaymentMethodDTO{ID: row.ExternalMethodID}
	if row.Brand != nil {
		dto.Brand = *row.Brand
	}
	if row.Last4 != nil {
		dto.Last4 = *row.Last4
	}
	if row.ExpMonth != nil {
		dto.ExpMonth = *row.ExpMonth
	}
	if row.ExpYear != nil {
		dto.ExpYear = *row.ExpYear
	}
	return dto
}

func customerIDOf(user *models.User) string {
	if user == nil || user.StripeCustomerID == nil {
		return ""
	}
	return strings.TrimSpace(*user.StripeCustomerID)
}

func stringPointer(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func intPointer(value int) *int {
	if value == 0 {
		return nil
	}
	return &value
}
