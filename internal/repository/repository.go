package repository

import (
	"github.com/InfraSecConsult/nfconvert-go/lib/model"
)

// Repository defines the contract for recording and querying
// conversion history: one row per batch, one row per conversion unit.
type Repository interface {
	// Batch operations
	BeginBatch(batch *model.BatchRecord) (int64, error)
	FinishBatch(id int64, status, failure string) error
	ListBatches() ([]*model.BatchRecord, error)

	// Unit operations
	AddUnit(unit *model.UnitRecord) error
	ListUnits(batchID int64) ([]*model.UnitRecord, error)

	Close() error
}
