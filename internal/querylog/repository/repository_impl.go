package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/verigate/verigate/internal/querylog/domain"
	"github.com/verigate/verigate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, record *domain.QueryRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Settle applies the terminal transition guarded on pending status. The
// returned bool is false when the record was already terminal.
func (r *repo) Settle(ctx context.Context, id snowflake.ID, update domain.TerminalUpdate) (bool, error) {
	values := map[string]any{
		"status":          update.Status,
		"result_summary":  update.ResultSummary,
		"error_kind":      update.ErrorKind,
		"credits_charged": update.CreditsCharged,
		"completed_at":    update.CompletedAt,
	}
	if update.FullResult != nil {
		values["full_result"] = update.FullResult
	}

	res := r.db.WithContext(ctx).Model(&domain.QueryRecord{}).
		Where("id = ? AND status = ?", id, domain.QueryStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.QueryRecord, error) {
	var record domain.QueryRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) List(ctx context.Context, filter domain.ListRequest, limit int, cursor *pagination.Cursor) ([]*domain.QueryRecord, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.QueryRecord{})

	if filter.OfficerID != 0 {
		stmt = stmt.Where("officer_id = ?", filter.OfficerID)
	}
	if tag := strings.TrimSpace(filter.OperationTag); tag != "" {
		stmt = stmt.Where("operation_tag = ?", tag)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if cursor != nil {
		cursorID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursorID)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit + 1)
	}

	var records []*domain.QueryRecord
	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
