// Package storage persists scan findings in SQLite. The upsert key is
// the resource id: re-scanning a resource replaces its prior finding.
package storage

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/digimosa/cpf-portal-scan/internal/models"
)

type FindingModel struct {
	ResourceID       string    `gorm:"primaryKey" json:"resource_id"`
	DatasetID        string    `gorm:"index" json:"dataset_id"`
	OrganizationName string    `json:"organization_name"`
	CPFs             string    `json:"cpfs"`     // JSON-encoded list of normalized digits
	Count            int       `json:"count"`
	Metadata         string    `json:"metadata"` // JSON-encoded map
	VerifiedAt       time.Time `json:"verified_at"`
}

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&FindingModel{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// UpsertFinding writes or replaces the finding for a resource. It never
// propagates the error: a lost finding is not scan-fatal and the next
// rescan regenerates it. Returns false on failure so the orchestrator
// can log it.
func (s *Store) UpsertFinding(f models.ScanFinding) bool {
	cpfs, err := json.Marshal(f.CPFs)
	if err != nil {
		log.Printf("[ERROR] encode cpfs for resource %s: %v", f.ResourceID, err)
		return false
	}
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		log.Printf("[ERROR] encode metadata for resource %s: %v", f.ResourceID, err)
		return false
	}

	row := FindingModel{
		ResourceID:       f.ResourceID,
		DatasetID:        f.DatasetID,
		OrganizationName: f.OrganizationName,
		CPFs:             string(cpfs),
		Count:            f.Count,
		Metadata:         string(meta),
		VerifiedAt:       f.VerifiedAt,
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		log.Printf("[ERROR] upsert finding for resource %s: %v", f.ResourceID, err)
		return false
	}
	return true
}

// FindingByResource loads one persisted finding, nil when absent.
func (s *Store) FindingByResource(resourceID string) (*FindingModel, error) {
	var row FindingModel
	err := s.db.First(&row, "resource_id = ?", resourceID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// AllFindings returns every persisted finding, most recent first.
func (s *Store) AllFindings() ([]FindingModel, error) {
	var rows []FindingModel
	err := s.db.Order("verified_at desc").Find(&rows).Error
	return rows, err
}

// CPFList decodes the stored CPF list.
func (m *FindingModel) CPFList() []string {
	var cpfs []string
	if err := json.Unmarshal([]byte(m.CPFs), &cpfs); err != nil {
		return nil
	}
	return cpfs
}
