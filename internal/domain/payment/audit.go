package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
)

// AuditSnapshot is the record retained for a terminal intent.
type AuditSnapshot struct {
	IntentID          uuid.UUID           `json:"intent_id"`
	UserID            int64               `json:"user_id"`
	PlanID            string              `json:"plan_id"`
	Provider          model.Provider      `json:"provider"`
	ProviderReference string              `json:"provider_reference"`
	Amount            int64               `json:"amount"`
	Currency          string              `json:"currency"`
	Status            model.PaymentStatus `json:"status"`
	Metadata          model.Metadata      `json:"metadata"`
	CreatedAt         time.Time           `json:"created_at"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	RecordedAt        time.Time           `json:"recorded_at"`
}

// AuditRecorder encrypts terminal intent snapshots and archives them.
type AuditRecorder struct {
	sealer  *security.Sealer
	archive outbound.AuditArchivePort
	now     func() time.Time
}

// NewAuditRecorder creates a new audit recorder.
func NewAuditRecorder(sealer *security.Sealer, archive outbound.AuditArchivePort) *AuditRecorder {
	return &AuditRecorder{sealer: sealer, archive: archive, now: time.Now}
}

// Record stores an encrypted snapshot of intent.
func (r *AuditRecorder) Record(ctx context.Context, intent *model.PaymentIntent) error {
	if err := security.ValidateMetadata(intent.Metadata); err != nil {
		return err
	}

	snap := AuditSnapshot{
		IntentID:          intent.ID,
		UserID:            intent.UserID,
		PlanID:            intent.PlanID,
		Provider:          intent.Provider,
		ProviderReference: intent.Reference(),
		Amount:            intent.Amount,
		Currency:          intent.Currency,
		Status:            intent.Status,
		Metadata:          intent.Metadata,
		CreatedAt:         intent.CreatedAt,
		CompletedAt:       intent.CompletedAt,
		RecordedAt:        r.now().UTC(),
	}

	blob, err := r.sealer.EncryptAtRest(snap)
	if err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := fmt.Sprintf("intents/%s/%s.enc", intent.ID, intent.Status)
	if err := r.archive.Put(ctx, key, []byte(blob)); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}

// Open decrypts an archived snapshot.
func (r *AuditRecorder) Open(blob []byte) (*AuditSnapshot, error) {
	var snap AuditSnapshot
	if err := r.sealer.DecryptAtRest(string(blob), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
