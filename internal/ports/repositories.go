package ports

import (
	"context"
	"errors"

	"github.com/propvoice/enquiry-agent/internal/domain"
)

// ErrEnquiryNotFound is returned by Update/Get for unknown ids.
var ErrEnquiryNotFound = errors.New("enquiry not found")

// EnquiryRepository persists enquiry records.
type EnquiryRepository interface {
	Save(ctx context.Context, enquiry *domain.Enquiry) error
	Get(ctx context.Context, id string) (*domain.Enquiry, error)
	// Update shallow-merges the patch into the stored record.
	Update(ctx context.Context, id string, patch domain.EnquiryPatch) error
	ListAll(ctx context.Context) ([]domain.Enquiry, error)
}
