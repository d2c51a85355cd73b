package repository

import (
	"context"
	"encoding/json"

	"github.com/yourusername/strategy-lab/internal/models"
)

// HyperoptRepository defines the interface for optimization-run persistence
type HyperoptRepository interface {
	Save(ctx context.Context, result *models.HyperoptResult) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.HyperoptResult, error)
	ListByStrategy(ctx context.Context, strategyName string, limit int) ([]*models.HyperoptResult, error)
	ListRecent(ctx context.Context, limit int) ([]*models.HyperoptResult, error)
	GetRawDocument(ctx context.Context, id int64) (json.RawMessage, error)
}

// BacktestRepository defines the interface for validation-run persistence
type BacktestRepository interface {
	Save(ctx context.Context, result *models.BacktestResult) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.BacktestResult, error)
	ListByStrategy(ctx context.Context, strategyName string, limit int) ([]*models.BacktestResult, error)
	ListRecent(ctx context.Context, limit int) ([]*models.BacktestResult, error)
	ListByHyperoptID(ctx context.Context, hyperoptID int64) ([]*models.BacktestResult, error)
	SaveTrades(ctx context.Context, id int64, trades json.RawMessage) error
	GetTrades(ctx context.Context, id int64) (json.RawMessage, error)
}
