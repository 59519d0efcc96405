package services

import (
	"context"

	"github.com/yoockh/callbridge/internal/models"
	mongorepo "github.com/yoockh/callbridge/internal/repositories/mongo"
	"github.com/yoockh/callbridge/internal/utils"
)

const maxHistory = 100

// CallLogService keeps a record of every finished call.
type CallLogService interface {
	Record(ctx context.Context, rec models.CallRecord) error
	History(ctx context.Context, callID string, limit int64) ([]models.CallRecord, error)
}

type callLogService struct {
	calls mongorepo.CallRepository
}

func NewCallLogService(calls mongorepo.CallRepository) CallLogService {
	return &callLogService{calls: calls}
}

func (s *callLogService) Record(ctx context.Context, rec models.CallRecord) error {
	const op = "CallLogService.Record"

	if rec.CallID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	if err := s.calls.Insert(ctx, &rec); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to store call record", err)
	}
	return nil
}

func (s *callLogService) History(ctx context.Context, callID string, limit int64) ([]models.CallRecord, error) {
	const op = "CallLogService.History"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	out, err := s.calls.ListByCallID(ctx, callID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list call history", err)
	}
	if len(out) == 0 {
		return nil, utils.E(utils.CodeNotFound, op, "no history for call", utils.ErrNotFound)
	}
	return out, nil
}
