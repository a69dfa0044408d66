package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verigate/verigate/internal/clock"
	ledgerdomain "github.com/verigate/verigate/internal/ledger/domain"
	officerdomain "github.com/verigate/verigate/internal/officer/domain"
	"github.com/verigate/verigate/pkg/db/pagination"
	"github.com/verigate/verigate/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *telemetry.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Reserve(ctx context.Context, officerID snowflake.ID, amount int64) (snowflake.ID, error) {
	// Zero is a valid amount: free operations still take a reservation so
	// settlement stays uniform across the pipeline.
	if amount < 0 {
		return 0, ledgerdomain.ErrInvalidAmount
	}

	token := s.genID.Generate()
	now := s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Single guarded decrement. The balance check and the decrement are
		// one statement, so no two concurrent reservations can both observe
		// a sufficient balance.
		res := tx.Model(&officerdomain.Officer{}).
			Where("id = ? AND credits_remaining >= ?", officerID, amount).
			Updates(map[string]any{
				"credits_remaining": gorm.Expr("credits_remaining - ?", amount),
				"updated_at":        now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var off officerdomain.Officer
			if err := tx.First(&off, "id = ?", officerID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return officerdomain.ErrOfficerNotFound
				}
				return err
			}
			return ledgerdomain.ErrInsufficientCredits
		}

		return tx.Create(&ledgerdomain.Reservation{
			ID:        token,
			OfficerID: officerID,
			Amount:    amount,
			Status:    ledgerdomain.ReservationStatusPending,
			CreatedAt: now,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ReservationOpened()
	return token, nil
}

func (s *Service) Commit(ctx context.Context, token snowflake.ID, queryID snowflake.ID) error {
	now := s.clock.Now()

	var committed bool
	var committedAmount int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reservation ledgerdomain.Reservation
		if err := tx.First(&reservation, "id = ?", token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledgerdomain.ErrInconsistentSettlement
			}
			return err
		}

		res := tx.Model(&ledgerdomain.Reservation{}).
			Where("id = ? AND status = ?", token, ledgerdomain.ReservationStatusPending).
			Updates(map[string]any{
				"status":     ledgerdomain.ReservationStatusCommitted,
				"query_id":   queryID,
				"settled_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Re-read: a concurrent settler may have flipped the status
			// between the lookup above and the guarded update.
			if err := tx.First(&reservation, "id = ?", token).Error; err != nil {
				return err
			}
			if reservation.Status == ledgerdomain.ReservationStatusCommitted {
				// Idempotent: already committed.
				return nil
			}
			return ledgerdomain.ErrInconsistentSettlement
		}

		committed = true
		committedAmount = reservation.Amount
		if reservation.Amount == 0 {
			// Nothing was deducted; a zero-delta entry would only pad the
			// ledger.
			return nil
		}
		return tx.Create(&ledgerdomain.LedgerEntry{
			ID:             s.genID.Generate(),
			OfficerID:      reservation.OfficerID,
			Action:         ledgerdomain.ActionDeduction,
			CreditsDelta:   -reservation.Amount,
			RelatedQueryID: &queryID,
			CreatedAt:      now,
		}).Error
	})
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrInconsistentSettlement) {
			s.log.Error("commit on reservation in terminal state",
				zap.Int64("token", int64(token)),
				zap.Int64("query_id", int64(queryID)),
			)
		}
		return err
	}

	if committed {
		s.metrics.ReservationSettled()
		if committedAmount > 0 {
			s.metrics.ObserveLedgerEntry(string(ledgerdomain.ActionDeduction))
		}
	}
	return nil
}

func (s *Service) Release(ctx context.Context, token snowflake.ID) error {
	now := s.clock.Now()

	var released bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservation, err := s.releaseInTx(tx, token, now)
		if err != nil {
			return err
		}
		released = reservation != nil
		return nil
	})
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrInconsistentSettlement) {
			s.log.Error("release on reservation in terminal state",
				zap.Int64("token", int64(token)),
			)
		}
		return err
	}

	if released {
		s.metrics.ReservationSettled()
	}
	return nil
}

// releaseInTx flips a pending reservation to released and restores the
// officer balance. Returns nil reservation when the release was an
// idempotent no-op.
func (s *Service) releaseInTx(tx *gorm.DB, token snowflake.ID, now time.Time) (*ledgerdomain.Reservation, error) {
	var reservation ledgerdomain.Reservation
	if err := tx.First(&reservation, "id = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrInconsistentSettlement
		}
		return nil, err
	}

	res := tx.Model(&ledgerdomain.Reservation{}).
		Where("id = ? AND status = ?", token, ledgerdomain.ReservationStatusPending).
		Updates(map[string]any{
			"status":     ledgerdomain.ReservationStatusReleased,
			"settled_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Re-read: a concurrent settler may have flipped the status
		// between the lookup above and the guarded update.
		if err := tx.First(&reservation, "id = ?", token).Error; err != nil {
			return nil, err
		}
		if reservation.Status == ledgerdomain.ReservationStatusReleased {
			// Idempotent: already released.
			return nil, nil
		}
		return nil, ledgerdomain.ErrInconsistentSettlement
	}

	err := tx.Model(&officerdomain.Officer{}).
		Where("id = ?", reservation.OfficerID).
		Updates(map[string]any{
			"credits_remaining": gorm.Expr("credits_remaining + ?", reservation.Amount),
			"updated_at":        now,
		}).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (s *Service) Credit(ctx context.Context, officerID snowflake.ID, amount int64, action ledgerdomain.LedgerAction, remarks string) (*ledgerdomain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	switch action {
	case ledgerdomain.ActionTopUp, ledgerdomain.ActionRenewal, ledgerdomain.ActionRefund:
	default:
		return nil, ledgerdomain.ErrInvalidAction
	}

	now := s.clock.Now()
	entry := &ledgerdomain.LedgerEntry{
		ID:           s.genID.Generate(),
		OfficerID:    officerID,
		Action:       action,
		CreditsDelta: amount,
		Remarks:      remarks,
		CreatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&officerdomain.Officer{}).
			Where("id = ?", officerID).
			Updates(map[string]any{
				"credits_remaining": gorm.Expr("credits_remaining + ?", amount),
				"updated_at":        now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return officerdomain.ErrOfficerNotFound
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveLedgerEntry(string(action))
	if action == ledgerdomain.ActionRefund {
		s.metrics.ObserveCreditsRefunded(amount)
	}
	return entry, nil
}

func (s *Service) Balance(ctx context.Context, officerID snowflake.ID) (int64, error) {
	var off officerdomain.Officer
	if err := s.db.WithContext(ctx).First(&off, "id = ?", officerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, officerdomain.ErrOfficerNotFound
		}
		return 0, err
	}
	return off.CreditsRemaining, nil
}

func (s *Service) SweepExpiredReservations(ctx context.Context, olderThan time.Time) (int, error) {
	var stale []ledgerdomain.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", ledgerdomain.ReservationStatusPending, olderThan).
		Order("created_at asc").
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	released := 0
	for _, reservation := range stale {
		if err := s.Release(ctx, reservation.ID); err != nil {
			// A reservation settled between the scan and the release is
			// fine; anything else aborts the sweep.
			if errors.Is(err, ledgerdomain.ErrInconsistentSettlement) {
				continue
			}
			return released, err
		}
		released++
		s.log.Warn("released orphaned reservation",
			zap.Int64("reservation_id", int64(reservation.ID)),
			zap.Int64("officer_id", int64(reservation.OfficerID)),
			zap.Int64("amount", reservation.Amount),
			zap.Time("created_at", reservation.CreatedAt),
		)
	}

	if released > 0 {
		s.metrics.ObserveSweepReleased(released)
	}
	return released, nil
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return ledgerdomain.ListResponse{}, ledgerdomain.ErrInvalidTimeRange
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	stmt := s.db.WithContext(ctx).Model(&ledgerdomain.LedgerEntry{})
	if req.OfficerID != 0 {
		stmt = stmt.Where("officer_id = ?", req.OfficerID)
	}
	if req.Action != "" {
		stmt = stmt.Where("action = ?", req.Action)
	}
	if req.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", req.StartAt.UTC())
	}
	if req.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", req.EndAt.UTC())
	}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return ledgerdomain.ListResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		cursorID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return ledgerdomain.ListResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursorID)
	}

	var entries []*ledgerdomain.LedgerEntry
	err := stmt.Order("created_at desc, id desc").Limit(limit + 1).Find(&entries).Error
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}

	page, pageInfo := pagination.BuildCursorPageInfo(entries, limit, func(e *ledgerdomain.LedgerEntry) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        strconv.FormatInt(int64(e.ID), 10),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	out := make([]ledgerdomain.LedgerEntry, 0, len(page))
	for _, e := range page {
		out = append(out, *e)
	}
	return ledgerdomain.ListResponse{
		PageInfo: *pageInfo,
		Entries:  out,
	}, nil
}
