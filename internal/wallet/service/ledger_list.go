package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/smallbiznis/credits/pkg/db"
	"github.com/smallbiznis/credits/pkg/db/pagination"
)

// ListLedger returns entries newest first, paginated by sequence.
func (s *Service) ListLedger(ctx context.Context, tenantID snowflake.ID, req domain.ListLedgerRequest) (*domain.ListLedgerResponse, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.StartDate != nil && req.EndDate != nil && !req.EndDate.After(*req.StartDate) {
		return nil, domain.ErrInvalidDateRange
	}

	filter := domain.LedgerFilter{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Limit:     pagination.NormalizeSize(req.PageSize) + 1,
	}
	if strings.TrimSpace(string(req.Direction)) != "" {
		direction, err := normalizeDirection(req.Direction)
		if err != nil {
			return nil, err
		}
		filter.Direction = direction
	}
	if strings.TrimSpace(string(req.SourceType)) != "" {
		sourceType, err := normalizeSourceType(req.SourceType)
		if err != nil {
			return nil, err
		}
		filter.SourceType = sourceType
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil || cursor.Sequence <= 0 {
			return nil, domain.ErrInvalidPageToken
		}
		filter.BeforeSeq = cursor.Sequence
	}

	items, err := s.repo.ListEntries(ctx, s.db, tenantID, filter)
	if err != nil {
		return nil, db.WrapStorage("list ledger entries", err)
	}

	page, info := pagination.BuildCursorPageInfo(items, filter.Limit-1, func(e *domain.LedgerEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:       e.ID.String(),
			Sequence: e.Sequence,
		})
		if err != nil {
			return ""
		}
		return token
	})

	return &domain.ListLedgerResponse{
		Entries:       lo.Map(page, func(e *domain.LedgerEntry, _ int) domain.LedgerEntry { return *e }),
		NextPageToken: info.NextPageToken,
		HasMore:       info.HasMore,
	}, nil
}
