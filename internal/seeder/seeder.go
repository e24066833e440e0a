package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db       *bun.DB
	logger   *zap.Logger
	currency string
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, cfg config.Config, logger *zap.Logger) *Seeder {
	return &Seeder{
		db:       conns.Writer,
		logger:   logger,
		currency: cfg.Procurement.DefaultCurrency,
	}
}

const seedUserID = 1

// Demo seeds a budget and a pending quote for the demo user if none exist.
func (s *Seeder) Demo(ctx context.Context) error {
	now := time.Now().UTC()

	count, err := s.db.NewSelect().Model((*entity.Budget)(nil)).
		Where("b.user_id = ?", seedUserID).
		Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		budget := &entity.Budget{
			UserID:          seedUserID,
			Name:            "Demo lab budget",
			TotalAmount:     5_000_000,
			UsedAmount:      0,
			RemainingAmount: 5_000_000,
			Currency:        s.currency,
			IsActive:        true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if _, err := s.db.NewInsert().Model(budget).Exec(ctx); err != nil {
			return err
		}
	}

	count, err = s.db.NewSelect().Model((*entity.Quote)(nil)).
		Where("q.user_id = ?", seedUserID).
		Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		quote := &entity.Quote{
			UserID:    seedUserID,
			Status:    entity.QuoteStatusPending,
			Currency:  s.currency,
			Message:   "Demo quote for reagent restock",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.db.NewInsert().Model(quote).Exec(ctx); err != nil {
			return err
		}
		unitPrice := int64(45_000)
		lineTotal := unitPrice * 2
		item := &entity.QuoteItem{
			QuoteID:       quote.ID,
			Name:          "Phosphate buffered saline 10x",
			Brand:         "LabPure",
			CatalogNumber: "PBS-10X-500",
			Quantity:      2,
			Unit:          "bottle",
			UnitPrice:     &unitPrice,
			LineTotal:     &lineTotal,
			PackSize:      "500 mL",
			CreatedAt:     now,
		}
		if _, err := s.db.NewInsert().Model(item).Exec(ctx); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded demo data", zap.Int64("user_id", seedUserID))
	}
	return nil
}
