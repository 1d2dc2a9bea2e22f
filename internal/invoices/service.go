// Package invoices issues invoice PDFs for orders and offsets voided invoices
// with credit notes.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/storage"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

const (
	pdfContentType = "application/pdf"

	historyCreated  = "created"
	historyModified = "modified"
	historyVoided   = "voided"

	constraintInvoiceOrder  = "invoices_order_id"
	constraintInvoiceNumber = "invoices_invoice_number"
)

func errInvoiceChanged() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice changed concurrently; retry")
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ModifyInput amends an invoice. Seller and buyer fields are merged over the
// current snapshot; nil pointers leave the value untouched.
type ModifyInput struct {
	Seller   types.Party `json:"seller,omitempty"`
	Buyer    types.Party `json:"buyer,omitempty"`
	Notes    *string     `json:"notes,omitempty"`
	IssuedAt *time.Time  `json:"issued_at,omitempty"`
}

func (in ModifyInput) isEmpty() bool {
	return len(in.Seller) == 0 && len(in.Buyer) == 0 && in.Notes == nil && in.IssuedAt == nil
}

// Service exposes invoice lifecycle operations scoped to the order owner.
type Service interface {
	GenerateInvoicePDF(ctx context.Context, userID, orderID uuid.UUID) ([]byte, *models.Invoice, error)
	ModifyInvoice(ctx context.Context, userID, orderID uuid.UUID, input ModifyInput) (*models.Invoice, error)
	VoidInvoice(ctx context.Context, userID, orderID uuid.UUID, reason *string) (*models.CreditNote, error)
}

// ServiceParams wires the invoice service.
type ServiceParams struct {
	Repo     Repository
	Orders   orders.Repository
	Users    catalog.Gateway
	Numbers  *NumberGenerator
	Renderer Renderer
	Storage  storage.Store
	Outbox   outbox.Emitter
	Tx       txRunner
	Config   config.InvoiceConfig
	Logger   *logger.Logger
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	orders   orders.Repository
	users    catalog.Gateway
	numbers  *NumberGenerator
	renderer Renderer
	storage  storage.Store
	outbox   outbox.Emitter
	tx       txRunner
	cfg      config.InvoiceConfig
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("invoice repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Numbers == nil:
		return nil, fmt.Errorf("number generator required")
	case params.Renderer == nil:
		return nil, fmt.Errorf("renderer required")
	case params.Storage == nil:
		return nil, fmt.Errorf("storage required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	if strings.TrimSpace(params.Config.NumberPrefix) == "" {
		params.Config.NumberPrefix = "INV"
	}
	if strings.TrimSpace(params.Config.CreditPrefix) == "" {
		params.Config.CreditPrefix = "CN"
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		users:    params.Users,
		numbers:  params.Numbers,
		renderer: params.Renderer,
		storage:  params.Storage,
		outbox:   params.Outbox,
		tx:       params.Tx,
		cfg:      params.Config,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// GenerateInvoicePDF creates the order's invoice on first use and returns a
// freshly rendered PDF. Voided invoices are served from storage and never
// regenerated.
func (s *service) GenerateInvoicePDF(ctx context.Context, userID, orderID uuid.UUID) ([]byte, *models.Invoice, error) {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, nil, err
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	invoice, err := s.repo.FindByOrderID(ctx, orderID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		pdf, created, createErr := s.createInvoice(ctx, order)
		if createErr == nil {
			return pdf, created, nil
		}
		if !db.IsUniqueViolation(createErr, constraintInvoiceOrder) {
			return nil, nil, createErr
		}
		// another request issued the invoice first
		invoice, err = s.repo.FindByOrderID(ctx, orderID)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload invoice")
		}
	case err != nil:
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}

	if invoice.Status == enums.InvoiceStatusVoided {
		pdf, err := s.voidedDocument(ctx, order, invoice)
		if err != nil {
			return nil, nil, err
		}
		return pdf, invoice, nil
	}

	pdf, path, err := s.renderAndStore(ctx, order, invoice)
	if err != nil {
		return nil, nil, err
	}
	if invoice.PDFPath == nil || *invoice.PDFPath != path {
		ok, err := s.repo.UpdateActive(ctx, invoice.ID, invoice.Version, map[string]any{"pdf_path": path})
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update invoice pdf path")
		}
		// a concurrent amendment or void owns the row now
		if ok {
			invoice.PDFPath = &path
			invoice.Version++
		}
	}
	return pdf, invoice, nil
}

func (s *service) createInvoice(ctx context.Context, order *models.Order) ([]byte, *models.Invoice, error) {
	issuedAt := s.now().UTC()
	number, err := s.numbers.Next(ctx, s.cfg.NumberPrefix, order.ID, issuedAt)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate invoice number")
	}

	invoice := &models.Invoice{
		ID:            uuid.New(),
		OrderID:       order.ID,
		InvoiceNumber: number,
		IssuedAt:      issuedAt,
		Status:        enums.InvoiceStatusActive,
		Version:       1,
		DataSnapshot: types.InvoiceSnapshot{
			Seller: types.Party(s.cfg.SellerInfo()),
			Buyer:  s.buyerParty(ctx, order),
		},
	}
	invoice.History = invoice.History.Append(types.HistoryEntry{
		Timestamp: issuedAt,
		Action:    historyCreated,
		Changes:   map[string]any{"invoice_number": number},
	})

	var pdf []byte
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rendered, path, err := s.renderAndStore(ctx, order, invoice)
		if err != nil {
			return err
		}
		invoice.PDFPath = &path
		pdf = rendered
		return s.repo.WithTx(tx).Create(ctx, invoice)
	})
	switch {
	case err == nil:
	case pkgerrors.As(err) != nil, db.IsUniqueViolation(err, constraintInvoiceOrder):
		return nil, nil, err
	case db.IsUniqueViolation(err, constraintInvoiceNumber):
		s.logg.Error(s.logg.WithField(ctx, "invoice_number", number), "invoice.number_collision", err)
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "invoice number already issued; check the invoice sequence")
	default:
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"invoice_id":     invoice.ID.String(),
		"invoice_number": invoice.InvoiceNumber,
	}), "invoice.generated")
	return pdf, invoice, nil
}

// ModifyInvoice merges the amendment into the snapshot, records it in the
// history and re-renders the stored PDF. The invoice is re-read under a row
// lock and written only if no other change landed in between.
func (s *service) ModifyInvoice(ctx context.Context, userID, orderID uuid.UUID, input ModifyInput) (*models.Invoice, error) {
	if input.isEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to modify")
	}
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var invoice *models.Invoice
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := lockedInvoice(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if current.Status == enums.InvoiceStatusVoided {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is voided")
		}
		s.amend(current, input)

		pdf, err := s.render(order, current)
		if err != nil {
			return err
		}
		if err := writeActive(ctx, repo, current, map[string]any{
			"data_snapshot": current.DataSnapshot,
			"issued_at":     current.IssuedAt,
			"history":       current.History,
		}); err != nil {
			return err
		}
		path, err := s.store(ctx, current, pdf)
		if err != nil {
			return err
		}
		if current.PDFPath == nil || *current.PDFPath != path {
			if err := writeActive(ctx, repo, current, map[string]any{"pdf_path": path}); err != nil {
				return err
			}
			current.PDFPath = &path
		}
		invoice = current
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "modify invoice")
	}

	s.logg.Info(s.logg.WithField(ctx, "invoice_id", invoice.ID.String()), "invoice.modified")
	return invoice, nil
}

func (s *service) amend(invoice *models.Invoice, input ModifyInput) {
	changes := map[string]any{}
	snapshot := invoice.DataSnapshot
	if len(input.Seller) > 0 {
		snapshot.Seller = snapshot.Seller.Merge(input.Seller)
		changes["seller"] = map[string]string(input.Seller)
	}
	if len(input.Buyer) > 0 {
		snapshot.Buyer = snapshot.Buyer.Merge(input.Buyer)
		changes["buyer"] = map[string]string(input.Buyer)
	}
	if input.Notes != nil {
		snapshot.Notes = *input.Notes
		changes["notes"] = *input.Notes
	}
	if input.IssuedAt != nil {
		invoice.IssuedAt = input.IssuedAt.UTC()
		changes["issued_at"] = invoice.IssuedAt
	}

	invoice.DataSnapshot = snapshot
	invoice.History = invoice.History.Append(types.HistoryEntry{
		Timestamp: s.now().UTC(),
		Action:    historyModified,
		Changes:   changes,
	})
}

// VoidInvoice voids the order's invoice and issues its single credit note.
func (s *service) VoidInvoice(ctx context.Context, userID, orderID uuid.UUID, reason *string) (*models.CreditNote, error) {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	reason = normalizeReason(reason)

	var note *models.CreditNote
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := lockedInvoice(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if invoice.Status == enums.InvoiceStatusVoided {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is already voided")
		}

		voidedAt := s.now().UTC()
		changes := map[string]any{}
		if reason != nil {
			changes["reason"] = *reason
		}
		invoice.History = invoice.History.Append(types.HistoryEntry{
			Timestamp: voidedAt,
			Action:    historyVoided,
			Changes:   changes,
		})
		invoice.Status = enums.InvoiceStatusVoided
		invoice.VoidedAt = &voidedAt

		number, err := s.numbers.Next(ctx, s.cfg.CreditPrefix, order.ID, voidedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate credit note number")
		}

		_, path, err := s.renderAndStore(ctx, order, invoice)
		if err != nil {
			return err
		}
		invoice.PDFPath = &path

		ok, err := repo.MarkVoided(ctx, invoice.ID, invoice.Version, map[string]any{
			"history":   invoice.History,
			"voided_at": voidedAt,
			"pdf_path":  path,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errInvoiceChanged()
		}

		note = &models.CreditNote{
			OrderID:          order.ID,
			InvoiceID:        invoice.ID,
			CreditNoteNumber: number,
			AmountCents:      order.TotalCents,
			Reason:           reason,
		}
		if err := repo.CreateCreditNote(ctx, note); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already has a credit note")
			}
			return err
		}

		event := payloads.InvoiceVoidedEvent{
			OrderID:          order.ID,
			InvoiceID:        invoice.ID,
			InvoiceNumber:    invoice.InvoiceNumber,
			CreditNoteNumber: note.CreditNoteNumber,
		}
		if reason != nil {
			event.Reason = *reason
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceVoided,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: enums.UserRoleCustomer.String()},
			Data:          event,
			OccurredAt:    voidedAt,
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void invoice")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"invoice_id":         note.InvoiceID.String(),
		"credit_note_number": note.CreditNoteNumber,
	}), "invoice.voided")
	return note, nil
}

func lockedInvoice(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Invoice, error) {
	invoice, err := repo.FindByOrderIDForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

// writeActive applies updates at the invoice's current version and advances it.
func writeActive(ctx context.Context, repo Repository, invoice *models.Invoice, updates map[string]any) error {
	ok, err := repo.UpdateActive(ctx, invoice.ID, invoice.Version, updates)
	if err != nil {
		return err
	}
	if !ok {
		return errInvoiceChanged()
	}
	invoice.Version++
	return nil
}

func (s *service) ownedOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *service) renderAndStore(ctx context.Context, order *models.Order, invoice *models.Invoice) ([]byte, string, error) {
	pdf, err := s.render(order, invoice)
	if err != nil {
		return nil, "", err
	}
	path, err := s.store(ctx, invoice, pdf)
	if err != nil {
		return nil, "", err
	}
	return pdf, path, nil
}

func (s *service) render(order *models.Order, invoice *models.Invoice) ([]byte, error) {
	pdf, err := s.renderer.RenderInvoice(*order, *invoice)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "render invoice")
	}
	return pdf, nil
}

// store writes the PDF under a status-specific key so a late active render
// never overwrites the voided document.
func (s *service) store(ctx context.Context, invoice *models.Invoice, pdf []byte) (string, error) {
	key := invoice.InvoiceNumber + ".pdf"
	if invoice.Status == enums.InvoiceStatusVoided {
		key = invoice.InvoiceNumber + "-voided.pdf"
	}
	path, err := s.storage.Put(ctx, key, pdf, pdfContentType)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "store invoice pdf")
	}
	return path, nil
}

func (s *service) voidedDocument(ctx context.Context, order *models.Order, invoice *models.Invoice) ([]byte, error) {
	if invoice.PDFPath != nil {
		pdf, err := s.storage.Get(ctx, *invoice.PDFPath)
		if err == nil {
			return pdf, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "read voided invoice pdf")
		}
		s.logg.Warn(s.logg.WithField(ctx, "pdf_path", *invoice.PDFPath), "invoice.voided_pdf_missing")
	}
	pdf, err := s.renderer.RenderInvoice(*order, *invoice)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "render invoice")
	}
	return pdf, nil
}

// buyerParty derives the buyer block from the order's address snapshot and,
// when available, the account email.
func (s *service) buyerParty(ctx context.Context, order *models.Order) types.Party {
	addr := order.ShippingAddress
	party := types.Party{
		"name":    addr.FullName,
		"address": strings.Join(addr.Lines(), "\n"),
	}
	if s.users == nil {
		return party
	}
	user, err := s.users.FindUser(ctx, order.UserID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "invoice.buyer_lookup_failed")
		return party
	}
	if user.Email != "" {
		party["email"] = user.Email
	}
	if party["name"] == "" {
		party["name"] = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return party
}

func normalizeReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*reason)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
