// Package updatelog implements the Update pipeline from spec.md §4.4:
// make/add/update an Update record and broadcast each persisted version
// to live subscribers (the UI websocket).
package updatelog

import (
	"time"

	"github.com/google/uuid"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/store"
)

// Pipeline owns the store's Updates collection and the broadcast Hub,
// so every persisted Update is published in the same call that writes
// it — callers never broadcast independently of storage.
type Pipeline struct {
	records *store.Records
	hub     *Hub
	clock   func() time.Time
}

func NewPipeline(records *store.Records, hub *Hub, clock func() time.Time) *Pipeline {
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{records: records, hub: hub, clock: clock}
}

// MakeUpdate builds a fresh, unsaved Queued Update for target/op/user.
func (p *Pipeline) MakeUpdate(target models.ResourceTarget, op models.Operation, userId string) models.Update {
	return models.Update{
		Id:        uuid.NewString(),
		Target:    target,
		Operation: op,
		Operator:  userId,
		Status:    models.UpdateStatusQueued,
		StartTs:   p.clock(),
	}
}

// AddUpdate persists a new Update and broadcasts it.
func (p *Pipeline) AddUpdate(u models.Update) (models.Update, error) {
	saved, err := p.records.PutUpdate(u)
	if err != nil {
		return saved, err
	}
	p.publish(saved)
	return saved, nil
}

// UpdateUpdate overwrites an existing Update (e.g. appending a log
// entry, or finalizing) and re-broadcasts it.
func (p *Pipeline) UpdateUpdate(u models.Update) (models.Update, error) {
	saved, err := p.records.PutUpdate(u)
	if err != nil {
		return saved, err
	}
	p.publish(saved)
	return saved, nil
}

func (p *Pipeline) publish(u models.Update) {
	if p.hub == nil {
		return
	}
	item := models.ListItem{Update: u}
	if username, err := p.operatorUsername(u.Operator); err == nil {
		item.OperatorUsername = username
	}
	p.hub.Broadcast(item)
}

func (p *Pipeline) operatorUsername(userId string) (string, error) {
	if userId == "" {
		return "", nil
	}
	u, err := p.records.GetUser(userId)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// SweepAbandoned finalizes every Update left InProgress (from a process
// that died mid-execution) as failed, never resumed — restart safety
// per spec.md §5's cancellation note, resolved as an Open Question in
// DESIGN.md.
func (p *Pipeline) SweepAbandoned() error {
	updates, err := p.records.ListUpdates(nil)
	if err != nil {
		return err
	}
	now := p.clock()
	for _, u := range updates {
		if u.Status != models.UpdateStatusInProgress {
			continue
		}
		u.AddLog(models.Log{
			Stage:   "abandoned",
			Stdout:  "",
			Stderr:  "process restarted while this update was in progress",
			Success: false,
			StartTs: now,
			EndTs:   now,
		})
		u.Finalize(now)
		if _, err := p.UpdateUpdate(u); err != nil {
			return err
		}
	}
	return nil
}
