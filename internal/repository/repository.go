// Package repository implements the result store over PostgreSQL. Each run
// is one immutable row; writes are single-statement transactions.
package repository

import (
	"fmt"

	"github.com/yourusername/strategy-lab/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Hyperopt HyperoptRepository
	Backtest BacktestRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Hyperopt: NewPostgresHyperoptRepository(db),
		Backtest: NewPostgresBacktestRepository(db),
	}, nil
}
