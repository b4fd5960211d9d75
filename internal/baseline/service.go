package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pelita-foundation/pelita/internal/shared"
)

// ErrValidation rejects an intake payload that fails basic checks.
var ErrValidation = errors.New("baseline: validation failed")

const approvalModule = "BASELINE"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
	ListAll(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	Create(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ApprovalPort reused from shared.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

var (
	_ ApprovalPort = (*shared.ApprovalRecorder)(nil)
	_ AuditPort    = (*shared.AuditLogger)(nil)
)

// Service orchestrates the baseline intake workflow.
type Service struct {
	repo      RepositoryPort
	approvals ApprovalPort
	audit     AuditPort
	logger    *slog.Logger
}

// NewService constructs baseline service.
func NewService(repo RepositoryPort, approvals ApprovalPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit, logger: logger}
}

// Input describes an intake payload.
type Input struct {
	BeneficiaryName string
	NIK             string
	Village         string
	HouseholdSize   int
	MonthlyIncome   int64
	Notes           string
}

func (in *Input) normalize() error {
	in.BeneficiaryName = strings.TrimSpace(in.BeneficiaryName)
	in.NIK = strings.TrimSpace(in.NIK)
	in.Village = strings.TrimSpace(in.Village)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.BeneficiaryName == "" || in.NIK == "" || in.Village == "" {
		return ErrValidation
	}
	if in.HouseholdSize < 1 || in.MonthlyIncome < 0 {
		return ErrValidation
	}
	return nil
}

// List returns one page of records with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, shared.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get fetches one record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	return s.repo.Get(ctx, id)
}

// Create persists a new draft record.
func (s *Service) Create(ctx context.Context, actorID int64, input Input) (Record, error) {
	if err := input.normalize(); err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:              uuid.New(),
		BeneficiaryName: input.BeneficiaryName,
		NIK:             input.NIK,
		Village:         input.Village,
		HouseholdSize:   input.HouseholdSize,
		MonthlyIncome:   input.MonthlyIncome,
		Notes:           input.Notes,
		Status:          StatusDraft,
		CreatedBy:       actorID,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return Record{}, err
	}
	s.recordAudit(ctx, actorID, "BASELINE_CREATE", rec.ID, map[string]any{"nik": rec.NIK})
	return rec, nil
}

// Update rewrites an editable record. Rejected records return to draft so
// field staff can resubmit after corrections.
func (s *Service) Update(ctx context.Context, actorID int64, id uuid.UUID, input Input) (Record, error) {
	if err := input.normalize(); err != nil {
		return Record{}, err
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusDraft && rec.Status != StatusRejected {
		return Record{}, shared.ErrInvalidTransition
	}
	rec.BeneficiaryName = input.BeneficiaryName
	rec.NIK = input.NIK
	rec.Village = input.Village
	rec.HouseholdSize = input.HouseholdSize
	rec.MonthlyIncome = input.MonthlyIncome
	rec.Notes = input.Notes
	rec.Status = StatusDraft
	if err := s.repo.Update(ctx, rec); err != nil {
		return Record{}, err
	}
	s.recordAudit(ctx, actorID, "BASELINE_UPDATE", rec.ID, map[string]any{"nik": rec.NIK})
	return rec, nil
}

// Submit moves a draft into review.
func (s *Service) Submit(ctx context.Context, actorID int64, id uuid.UUID) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusDraft, StatusSubmitted); err != nil {
		return err
	}
	s.recordApproval(ctx, actorID, id, shared.ApprovalSubmit, fmt.Sprintf("Baseline %s diajukan", rec.NIK))
	s.recordAudit(ctx, actorID, "BASELINE_SUBMIT", id, nil)
	return nil
}

// Approve accepts a submitted record into the program.
func (s *Service) Approve(ctx context.Context, actorID int64, id uuid.UUID) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusSubmitted, StatusApproved); err != nil {
		return err
	}
	s.recordApproval(ctx, actorID, id, shared.ApprovalApprove, fmt.Sprintf("Baseline %s disetujui", rec.NIK))
	s.recordAudit(ctx, actorID, "BASELINE_APPROVE", id, nil)
	return nil
}

// Reject returns a submitted record to the submitter.
func (s *Service) Reject(ctx context.Context, actorID int64, id uuid.UUID, note string) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusSubmitted, StatusRejected); err != nil {
		return err
	}
	if note == "" {
		note = fmt.Sprintf("Baseline %s ditolak", rec.NIK)
	}
	s.recordApproval(ctx, actorID, id, shared.ApprovalReject, note)
	s.recordAudit(ctx, actorID, "BASELINE_REJECT", id, map[string]any{"note": note})
	return nil
}

// Delete removes a draft record.
func (s *Service) Delete(ctx context.Context, actorID int64, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "BASELINE_DELETE", id, nil)
	return nil
}

// ExportAll returns every record for CSV export.
func (s *Service) ExportAll(ctx context.Context) ([]Record, error) {
	return s.repo.ListAll(ctx)
}

// History returns the approval trail of one record, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, approvalModule, id)
}

func (s *Service) recordApproval(ctx context.Context, actorID int64, refID uuid.UUID, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	log := shared.ApprovalLog{Module: approvalModule, RefID: refID, ActorID: actorID, Action: action, Note: note}
	if err := s.approvals.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record approval", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{ActorID: actorID, Action: action, Entity: "baseline_record", EntityID: id.String(), Meta: meta}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}
