// Package memory is an in-process Call Registry used for tests and for
// single-node runs. It also implements the change feed by fanning writes
// out to subscribers, which makes push-plus-poll behavior reproducible
// without any external infrastructure.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/clearwave/callsig/internal/core/domain"
	"github.com/clearwave/callsig/internal/core/port"
	"github.com/clearwave/callsig/internal/core/query"
)

type fielder interface {
	Field(name string) any
}

type subscriber struct {
	table  string
	filter query.Filter
	ch     chan port.Event
}

type Registry struct {
	mu           sync.Mutex
	intents      []domain.CallIntent
	calls        []domain.GroupCall
	participants []domain.GroupCallParticipant
	subs         map[*subscriber]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[*subscriber]struct{}),
	}
}

func (r *Registry) CallIntents() port.CallIntentStore   { return intentStore{r} }
func (r *Registry) GroupCalls() port.GroupCallStore     { return groupCallStore{r} }
func (r *Registry) Participants() port.ParticipantStore { return participantStore{r} }

// Subscribe implements port.ChangeFeed. The channel is buffered and sends
// are non-blocking: a slow consumer loses events, exactly the best-effort
// contract the reconciliation poll exists to cover.
func (r *Registry) Subscribe(ctx context.Context, table string, f query.Filter) (<-chan port.Event, error) {
	sub := &subscriber{
		table:  table,
		filter: f,
		ch:     make(chan port.Event, 32),
	}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subs, sub)
		r.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch, nil
}

// publish fans one event out to matching subscribers. Caller holds r.mu.
func (r *Registry) publish(table string, typ port.EventType, row fielder) {
	raw, err := json.Marshal(row)
	if err != nil {
		log.Error().Err(err).Str("table", table).Msg("Marshal feed event")
		return
	}
	ev := port.Event{Type: typ, Table: table, Row: raw}
	for sub := range r.subs {
		if sub.table != table || !sub.filter.Match(row.Field) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Warn().Str("table", table).Msg("Feed subscriber full, dropping event")
		}
	}
}

type intentStore struct{ r *Registry }

func (s intentStore) Insert(_ context.Context, intent domain.CallIntent) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.intents = append(s.r.intents, intent)
	s.r.publish(domain.TableCallIntents, port.EventInsert, intent)
	return nil
}

func (s intentStore) Update(_ context.Context, f query.Filter, p port.IntentPatch) (int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var matched int64
	for i := range s.r.intents {
		if !f.Match(s.r.intents[i].Field) {
			continue
		}
		matched++
		if p.Status != nil {
			s.r.intents[i].Status = *p.Status
		}
		if p.UpdatedAt != nil {
			s.r.intents[i].UpdatedAt = *p.UpdatedAt
		}
		s.r.publish(domain.TableCallIntents, port.EventUpdate, s.r.intents[i])
	}
	return matched, nil
}

func (s intentStore) Delete(_ context.Context, f query.Filter) (int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var kept []domain.CallIntent
	var matched int64
	for _, row := range s.r.intents {
		if f.Match(row.Field) {
			matched++
			s.r.publish(domain.TableCallIntents, port.EventDelete, row)
			continue
		}
		kept = append(kept, row)
	}
	s.r.intents = kept
	return matched, nil
}

func (s intentStore) Find(_ context.Context, f query.Filter) ([]domain.CallIntent, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var out []domain.CallIntent
	for _, row := range s.r.intents {
		if f.Match(row.Field) {
			out = append(out, row)
		}
	}
	return out, nil
}

type groupCallStore struct{ r *Registry }

func (s groupCallStore) Insert(_ context.Context, call domain.GroupCall) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.calls = append(s.r.calls, call)
	s.r.publish(domain.TableGroupCalls, port.EventInsert, call)
	return nil
}

func (s groupCallStore) Update(_ context.Context, f query.Filter, p port.GroupCallPatch) (int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var matched int64
	for i := range s.r.calls {
		if !f.Match(s.r.calls[i].Field) {
			continue
		}
		matched++
		if p.IsActive != nil {
			s.r.calls[i].IsActive = *p.IsActive
		}
		if p.EndedAt != nil {
			t := *p.EndedAt
			s.r.calls[i].EndedAt = &t
		}
		s.r.publish(domain.TableGroupCalls, port.EventUpdate, s.r.calls[i])
	}
	return matched, nil
}

func (s groupCallStore) Find(_ context.Context, f query.Filter) ([]domain.GroupCall, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var out []domain.GroupCall
	for _, row := range s.r.calls {
		if f.Match(row.Field) {
			out = append(out, row)
		}
	}
	return out, nil
}

type participantStore struct{ r *Registry }

func (s participantStore) Upsert(_ context.Context, p domain.GroupCallParticipant) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	for i := range s.r.participants {
		if s.r.participants[i].CallID == p.CallID && s.r.participants[i].UserAddress == p.UserAddress {
			s.r.participants[i] = p
			s.r.publish(domain.TableParticipants, port.EventUpdate, p)
			return nil
		}
	}
	s.r.participants = append(s.r.participants, p)
	s.r.publish(domain.TableParticipants, port.EventInsert, p)
	return nil
}

func (s participantStore) Update(_ context.Context, f query.Filter, p port.ParticipantPatch) (int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var matched int64
	for i := range s.r.participants {
		if !f.Match(s.r.participants[i].Field) {
			continue
		}
		matched++
		if p.IsActive != nil {
			s.r.participants[i].IsActive = *p.IsActive
		}
		if p.JoinedAt != nil {
			s.r.participants[i].JoinedAt = *p.JoinedAt
		}
		if p.LeftAt != nil {
			t := *p.LeftAt
			s.r.participants[i].LeftAt = &t
		}
		s.r.publish(domain.TableParticipants, port.EventUpdate, s.r.participants[i])
	}
	return matched, nil
}

func (s participantStore) Find(_ context.Context, f query.Filter) ([]domain.GroupCallParticipant, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var out []domain.GroupCallParticipant
	for _, row := range s.r.participants {
		if f.Match(row.Field) {
			out = append(out, row)
		}
	}
	return out, nil
}
