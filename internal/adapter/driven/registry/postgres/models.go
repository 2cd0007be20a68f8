package postgres

import (
	"time"

	"github.com/clearwave/callsig/internal/core/domain"
)

type callIntentRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Caller    string    `gorm:"column:caller;index"`
	Callee    string    `gorm:"column:callee;index"`
	Channel   string    `gorm:"column:channel"`
	Status    string    `gorm:"column:status;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (callIntentRow) TableName() string { return domain.TableCallIntents }

func intentToRow(c domain.CallIntent) callIntentRow {
	return callIntentRow{
		ID:        string(c.ID),
		Caller:    c.Caller,
		Callee:    c.Callee,
		Channel:   string(c.Channel),
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (r callIntentRow) toDomain() domain.CallIntent {
	return domain.CallIntent{
		ID:        domain.CallID(r.ID),
		Caller:    r.Caller,
		Callee:    r.Callee,
		Channel:   domain.ChannelID(r.Channel),
		Status:    domain.CallStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type groupCallRow struct {
	ID        string     `gorm:"column:id;primaryKey"`
	GroupID   string     `gorm:"column:group_id;index"`
	GroupName string     `gorm:"column:group_name"`
	Channel   string     `gorm:"column:channel"`
	StartedBy string     `gorm:"column:started_by"`
	IsVideo   bool       `gorm:"column:is_video"`
	StartedAt time.Time  `gorm:"column:started_at"`
	IsActive  bool       `gorm:"column:is_active;index"`
	EndedAt   *time.Time `gorm:"column:ended_at"`
}

func (groupCallRow) TableName() string { return domain.TableGroupCalls }

func groupCallToRow(g domain.GroupCall) groupCallRow {
	return groupCallRow{
		ID:        string(g.ID),
		GroupID:   g.GroupID,
		GroupName: g.GroupName,
		Channel:   string(g.Channel),
		StartedBy: g.StartedBy,
		IsVideo:   g.IsVideo,
		StartedAt: g.StartedAt,
		IsActive:  g.IsActive,
		EndedAt:   g.EndedAt,
	}
}

func (r groupCallRow) toDomain() domain.GroupCall {
	return domain.GroupCall{
		ID:        domain.CallID(r.ID),
		GroupID:   r.GroupID,
		GroupName: r.GroupName,
		Channel:   domain.ChannelID(r.Channel),
		StartedBy: r.StartedBy,
		IsVideo:   r.IsVideo,
		StartedAt: r.StartedAt,
		IsActive:  r.IsActive,
		EndedAt:   r.EndedAt,
	}
}

type participantRow struct {
	CallID      string     `gorm:"column:call_id;primaryKey"`
	UserAddress string     `gorm:"column:user_address;primaryKey"`
	JoinedAt    time.Time  `gorm:"column:joined_at"`
	LeftAt      *time.Time `gorm:"column:left_at"`
	IsActive    bool       `gorm:"column:is_active;index"`
}

func (participantRow) TableName() string { return domain.TableParticipants }

func participantToRow(p domain.GroupCallParticipant) participantRow {
	return participantRow{
		CallID:      string(p.CallID),
		UserAddress: p.UserAddress,
		JoinedAt:    p.JoinedAt,
		LeftAt:      p.LeftAt,
		IsActive:    p.IsActive,
	}
}

func (r participantRow) toDomain() domain.GroupCallParticipant {
	return domain.GroupCallParticipant{
		CallID:      domain.CallID(r.CallID),
		UserAddress: r.UserAddress,
		JoinedAt:    r.JoinedAt,
		LeftAt:      r.LeftAt,
		IsActive:    r.IsActive,
	}
}
