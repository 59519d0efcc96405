package services

import (
	"context"
	"errors"
	"testing"

	"github.com/yoockh/callbridge/internal/models"
	"github.com/yoockh/callbridge/internal/utils"
)

type fakeCallRepo struct {
	inserted []models.CallRecord
	list     []models.CallRecord
	limit    int64
	err      error
}

func (f *fakeCallRepo) Insert(_ context.Context, rec *models.CallRecord) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, *rec)
	return nil
}

func (f *fakeCallRepo) ListByCallID(_ context.Context, _ string, limit int64) ([]models.CallRecord, error) {
	f.limit = limit
	return f.list, f.err
}

func TestCallLogService_Record(t *testing.T) {
	repo := &fakeCallRepo{}
	svc := NewCallLogService(repo)

	if err := svc.Record(context.Background(), models.CallRecord{}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("empty record = %v, want INVALID_ARGUMENT", err)
	}
	if err := svc.Record(context.Background(), models.CallRecord{CallID: "abc"}); err != nil {
		t.Fatal(err)
	}
	if len(repo.inserted) != 1 {
		t.Errorf("inserted = %d", len(repo.inserted))
	}

	repo.err = errors.New("write concern")
	if err := svc.Record(context.Background(), models.CallRecord{CallID: "abc"}); !utils.IsCode(err, utils.CodeInternal) {
		t.Errorf("repo failure = %v, want INTERNAL", err)
	}
}

func TestCallLogService_History(t *testing.T) {
	repo := &fakeCallRepo{}
	svc := NewCallLogService(repo)

	if _, err := svc.History(context.Background(), "abc", 0); !utils.IsCode(err, utils.CodeNotFound) {
		t.Errorf("empty history = %v, want NOT_FOUND", err)
	}
	if repo.limit != maxHistory {
		t.Errorf("limit = %d, want %d", repo.limit, maxHistory)
	}

	repo.list = []models.CallRecord{{CallID: "abc"}}
	out, err := svc.History(context.Background(), "abc", 5)
	if err != nil || len(out) != 1 || repo.limit != 5 {
		t.Errorf("History = %v, %v (limit %d)", out, err, repo.limit)
	}
}
