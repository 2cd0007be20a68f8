// Package postgres binds the Call Registry to Postgres through GORM. All
// filter translation happens here; the core never sees SQL.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/clearwave/callsig/internal/core/domain"
	"github.com/clearwave/callsig/internal/core/port"
	"github.com/clearwave/callsig/internal/core/query"
)

type Registry struct {
	db *gorm.DB
}

func New(dsn string) (*Registry, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open registry database")
	}
	if err := db.AutoMigrate(&callIntentRow{}, &groupCallRow{}, &participantRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate registry schema")
	}
	return &Registry{db: db}, nil
}

func (r *Registry) CallIntents() port.CallIntentStore   { return intentStore{r.db} }
func (r *Registry) GroupCalls() port.GroupCallStore     { return groupCallStore{r.db} }
func (r *Registry) Participants() port.ParticipantStore { return participantStore{r.db} }

// whereClause renders the shared filter vocabulary as a parameterized SQL
// predicate: groups OR-ed together, conds AND-ed within a group.
func whereClause(f query.Filter) (string, []any) {
	if f.Empty() {
		return "", nil
	}
	var groups []string
	var args []any
	for _, g := range f.Groups {
		var conds []string
		for _, c := range g {
			switch c.Op {
			case query.OpIn:
				conds = append(conds, fmt.Sprintf("%s IN ?", c.Field))
				args = append(args, flatten(c.Values))
			default:
				conds = append(conds, fmt.Sprintf("%s = ?", c.Field))
				args = append(args, flatten1(c.Value))
			}
		}
		groups = append(groups, "("+strings.Join(conds, " AND ")+")")
	}
	return strings.Join(groups, " OR "), args
}

// Filter values arrive as domain types (CallID, CallStatus); the driver
// wants plain strings.
func flatten1(v any) any {
	switch t := v.(type) {
	case domain.CallID:
		return string(t)
	case domain.ChannelID:
		return string(t)
	case domain.CallStatus:
		return string(t)
	default:
		return v
	}
}

func flatten(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = flatten1(v)
	}
	return out
}

func scoped(db *gorm.DB, f query.Filter) *gorm.DB {
	sql, args := whereClause(f)
	if sql == "" {
		return db
	}
	return db.Where(sql, args...)
}

type intentStore struct{ db *gorm.DB }

func (s intentStore) Insert(ctx context.Context, intent domain.CallIntent) error {
	row := intentToRow(intent)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert call intent")
	}
	return nil
}

func (s intentStore) Update(ctx context.Context, f query.Filter, p port.IntentPatch) (int64, error) {
	patch := map[string]any{}
	if p.Status != nil {
		patch["status"] = string(*p.Status)
	}
	if p.UpdatedAt != nil {
		patch["updated_at"] = *p.UpdatedAt
	}
	res := scoped(s.db.WithContext(ctx).Model(&callIntentRow{}), f).Updates(patch)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "update call intents")
	}
	return res.RowsAffected, nil
}

func (s intentStore) Delete(ctx context.Context, f query.Filter) (int64, error) {
	res := scoped(s.db.WithContext(ctx), f).Delete(&callIntentRow{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete call intents")
	}
	return res.RowsAffected, nil
}

func (s intentStore) Find(ctx context.Context, f query.Filter) ([]domain.CallIntent, error) {
	var rows []callIntentRow
	if err := scoped(s.db.WithContext(ctx), f).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "find call intents")
	}
	out := make([]domain.CallIntent, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

type groupCallStore struct{ db *gorm.DB }

func (s groupCallStore) Insert(ctx context.Context, call domain.GroupCall) error {
	row := groupCallToRow(call)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert group call")
	}
	return nil
}

func (s groupCallStore) Update(ctx context.Context, f query.Filter, p port.GroupCallPatch) (int64, error) {
	patch := map[string]any{}
	if p.IsActive != nil {
		patch["is_active"] = *p.IsActive
	}
	if p.EndedAt != nil {
		patch["ended_at"] = *p.EndedAt
	}
	res := scoped(s.db.WithContext(ctx).Model(&groupCallRow{}), f).Updates(patch)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "update group calls")
	}
	return res.RowsAffected, nil
}

func (s groupCallStore) Find(ctx context.Context, f query.Filter) ([]domain.GroupCall, error) {
	var rows []groupCallRow
	if err := scoped(s.db.WithContext(ctx), f).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "find group calls")
	}
	out := make([]domain.GroupCall, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

type participantStore struct{ db *gorm.DB }

func (s participantStore) Upsert(ctx context.Context, p domain.GroupCallParticipant) error {
	row := participantToRow(p)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "call_id"}, {Name: "user_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"joined_at", "left_at", "is_active"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "upsert participant")
	}
	return nil
}

func (s participantStore) Update(ctx context.Context, f query.Filter, p port.ParticipantPatch) (int64, error) {
	patch := map[string]any{}
	if p.IsActive != nil {
		patch["is_active"] = *p.IsActive
	}
	if p.JoinedAt != nil {
		patch["joined_at"] = *p.JoinedAt
	}
	if p.LeftAt != nil {
		patch["left_at"] = *p.LeftAt
	}
	res := scoped(s.db.WithContext(ctx).Model(&participantRow{}), f).Updates(patch)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "update participants")
	}
	return res.RowsAffected, nil
}

func (s participantStore) Find(ctx context.Context, f query.Filter) ([]domain.GroupCallParticipant, error) {
	var rows []participantRow
	if err := scoped(s.db.WithContext(ctx), f).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "find participants")
	}
	out := make([]domain.GroupCallParticipant, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
