package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docuquery-go/internal/model"
)

// NamespaceRepository records which embedding backend populated each
// namespace. One namespace, one backend: mixing embedding spaces makes
// cosine scores meaningless, so a mismatch is rejected at write time.
type NamespaceRepository interface {
	// GetOrRegister binds the namespace to backend/dims on first use and
	// returns the stored binding afterwards. Registering an existing
	// namespace with a different backend fails with ErrBackendMismatch.
	GetOrRegister(namespace, backend string, dims int) (*model.VectorNamespace, error)
	Get(namespace string) (*model.VectorNamespace, error)
}

type namespaceRepository struct {
	db *gorm.DB
}

// NewNamespaceRepository creates a GORM-backed NamespaceRepository.
func NewNamespaceRepository(db *gorm.DB) NamespaceRepository {
	return &namespaceRepository{db: db}
}

func (r *namespaceRepository) GetOrRegister(namespace, backend string, dims int) (*model.VectorNamespace, error) {
	record := model.VectorNamespace{
		Namespace:  namespace,
		Backend:    backend,
		Dimensions: dims,
	}
	// Insert-if-absent; concurrent registrations converge on the first
	// writer's row.
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}},
		DoNothing: true,
	}).Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("register namespace: %w", err)
	}

	stored, err := r.Get(namespace)
	if err != nil {
		return nil, err
	}
	if stored.Backend != backend {
		return nil, fmt.Errorf("%w: namespace %s is bound to backend %s, got %s",
			model.ErrBackendMismatch, namespace, stored.Backend, backend)
	}
	return stored, nil
}

func (r *namespaceRepository) Get(namespace string) (*model.VectorNamespace, error) {
	var record model.VectorNamespace
	err := r.db.Where("namespace = ?", namespace).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("namespace %s is not registered: %w", namespace, err)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
