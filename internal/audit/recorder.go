package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autoservis/autoservis/internal/platform/db"
	"github.com/autoservis/autoservis/internal/shared"
)

// Observer is notified once a written fact is durable.
type Observer interface {
	AuditRecorded(table, action string)
}

// Recorder turns entries into facts on a transaction-bound Writer.
type Recorder struct {
	observer Observer
}

// NewRecorder constructs a Recorder. observer may be nil.
func NewRecorder(observer Observer) *Recorder {
	return &Recorder{observer: observer}
}

// Record writes exactly one fact for the entry. Any failure is reported as
// shared.ErrAuditWrite so the surrounding transaction rolls back. The observer
// hears about the fact only after that transaction commits.
func (r *Recorder) Record(ctx context.Context, w Writer, e Entry) (Fact, error) {
	if w == nil {
		return Fact{}, fmt.Errorf("%w: writer not configured", shared.ErrAuditWrite)
	}
	if e.Table == "" || e.RecordID == "" || !e.Action.IsValid() {
		return Fact{}, fmt.Errorf("%w: table, record id and action are required", shared.ErrAuditWrite)
	}
	oldValue, err := marshal(e.Old)
	if err != nil {
		return Fact{}, fmt.Errorf("%w: encode old value: %v", shared.ErrAuditWrite, err)
	}
	newValue, err := marshal(e.New)
	if err != nil {
		return Fact{}, fmt.Errorf("%w: encode new value: %v", shared.ErrAuditWrite, err)
	}
	fact, err := w.InsertFact(ctx, Fact{
		TableName:  e.Table,
		ActionType: e.Action,
		RecordID:   e.RecordID,
		OldValue:   oldValue,
		NewValue:   newValue,
		UserID:     e.Actor.UserID,
		IPAddress:  e.Actor.IP,
	})
	if err != nil {
		return Fact{}, fmt.Errorf("%w: %v", shared.ErrAuditWrite, err)
	}
	if r != nil && r.observer != nil {
		observer, table, action := r.observer, e.Table, string(e.Action)
		db.AfterCommit(ctx, func() { observer.AuditRecorded(table, action) })
	}
	return fact, nil
}

func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
