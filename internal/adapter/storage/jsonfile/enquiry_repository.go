// Package jsonfile stores enquiry records in a single JSON array file.
// Every write is a read-modify-write of the whole file; at expected call
// volumes the lack of partial-write durability is acceptable.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/ports"
)

type EnquiryRepository struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

func NewEnquiryRepository(path string, log *zap.Logger) (*EnquiryRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	repo := &EnquiryRepository{path: path, log: log}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := repo.writeAll([]domain.Enquiry{}); err != nil {
			return nil, err
		}
		log.Info("Created enquiries file", zap.String("path", path))
	}
	return repo, nil
}

func (r *EnquiryRepository) Save(ctx context.Context, enquiry *domain.Enquiry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enquiries := r.readAll()
	enquiries = append(enquiries, *enquiry)

	if err := r.writeAll(enquiries); err != nil {
		r.log.Error("Failed to save enquiry", zap.String("enquiry_id", enquiry.EnquiryID), zap.Error(err))
		return err
	}
	r.log.Info("Saved enquiry", zap.String("enquiry_id", enquiry.EnquiryID))
	return nil
}

func (r *EnquiryRepository) Get(ctx context.Context, id string) (*domain.Enquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	enquiries := r.readAll()
	for i := range enquiries {
		if enquiries[i].EnquiryID == id {
			e := enquiries[i]
			return &e, nil
		}
	}
	return nil, ports.ErrEnquiryNotFound
}

func (r *EnquiryRepository) Update(ctx context.Context, id string, patch domain.EnquiryPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enquiries := r.readAll()
	found := false
	for i := range enquiries {
		if enquiries[i].EnquiryID == id {
			patch.Apply(&enquiries[i])
			found = true
			break
		}
	}
	if !found {
		r.log.Warn("Update for unknown enquiry", zap.String("enquiry_id", id))
		return ports.ErrEnquiryNotFound
	}

	if err := r.writeAll(enquiries); err != nil {
		r.log.Error("Failed to update enquiry", zap.String("enquiry_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (r *EnquiryRepository) ListAll(ctx context.Context) ([]domain.Enquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readAll(), nil
}

// readAll treats a corrupt or missing file as an empty list rather than a
// fatal error.
func (r *EnquiryRepository) readAll() []domain.Enquiry {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return []domain.Enquiry{}
	}
	var enquiries []domain.Enquiry
	if err := json.Unmarshal(data, &enquiries); err != nil {
		r.log.Warn("Enquiries file corrupt, treating as empty", zap.Error(err))
		return []domain.Enquiry{}
	}
	return enquiries
}

func (r *EnquiryRepository) writeAll(enquiries []domain.Enquiry) error {
	data, err := json.MarshalIndent(enquiries, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
