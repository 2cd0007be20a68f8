package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/clearwave/callsig/internal/core/domain"
	"github.com/clearwave/callsig/internal/core/port"
	"github.com/clearwave/callsig/internal/core/query"
)

// DirectState is the client-facing view of 1:1 signaling. It is derived
// from whatever the registry last showed us, via push or poll; on conflict
// the registry wins.
type DirectState struct {
	Incoming     *domain.CallIntent
	Outgoing     *domain.CallIntent
	ActiveCallID domain.CallID
	RemoteHangup bool
}

// DirectCallService owns the 1:1 call state machine:
// ringing -> accepted | rejected | ended, accepted -> ended.
// Every transition is an idempotent write of absolute state, so retrying
// any operation after a timeout is always safe.
type DirectCallService struct {
	user     string
	registry port.Registry
	feed     port.ChangeFeed
	notifier port.Notifier

	mu    sync.Mutex
	state DirectState
}

func NewDirectCallService(user string, registry port.Registry, feed port.ChangeFeed, notifier port.Notifier) *DirectCallService {
	return &DirectCallService{
		user:     user,
		registry: registry,
		feed:     feed,
		notifier: notifier,
	}
}

// involvesMe matches rows where the local user plays either role.
func (s *DirectCallService) involvesMe(conds ...query.Cond) query.Filter {
	f := query.Where(append([]query.Cond{query.Eq("caller", s.user)}, conds...)...)
	return f.OrWhere(append([]query.Cond{query.Eq("callee", s.user)}, conds...)...)
}

// StartCall rings callee on the given media channel. Any live row left over
// from a previous crashed or abandoned attempt by this user is purged
// first, so a stuck "ringing" can never block a fresh call.
func (s *DirectCallService) StartCall(ctx context.Context, callee string, channel domain.ChannelID) (domain.CallIntent, error) {
	live := query.In("status", domain.LiveStatusValues()...)
	if _, err := s.registry.CallIntents().Delete(ctx, s.involvesMe(live)); err != nil {
		return domain.CallIntent{}, errors.Wrap(err, "purge stale intents")
	}

	intent := domain.NewCallIntent(s.user, callee, channel)
	if err := s.registry.CallIntents().Insert(ctx, intent); err != nil {
		return domain.CallIntent{}, errors.Wrap(err, "insert call intent")
	}

	if s.notifier != nil {
		alert := port.CallAlert{
			Type:       port.AlertIncomingCall,
			CallerID:   s.user,
			CallerName: s.user,
			URL:        "/call/" + intent.ID.String(),
		}
		if err := s.notifier.Send(ctx, callee, alert); err != nil {
			log.Warn().Err(err).Str("callee", callee).Msg("Call alert delivery failed")
		}
	}

	s.mu.Lock()
	s.state.Outgoing = &intent
	s.state.RemoteHangup = false
	s.mu.Unlock()

	log.Info().Str("call_id", intent.ID.String()).Str("callee", callee).Msg("Call started")
	return intent, nil
}

// AcceptCall moves a ringing intent to accepted and returns its media
// channel. Accepting an already-accepted intent returns the same channel.
func (s *DirectCallService) AcceptCall(ctx context.Context, id domain.CallID) (domain.ChannelID, error) {
	if _, err := s.transition(ctx, id, domain.StatusRinging, domain.StatusAccepted); err != nil {
		return "", err
	}

	rows, err := s.registry.CallIntents().Find(ctx, query.Where(query.Eq("id", id)))
	if err != nil {
		return "", errors.Wrap(err, "fetch call intent")
	}
	if len(rows) == 0 {
		return "", port.ErrNotFound
	}
	row := rows[0]
	if row.Status != domain.StatusAccepted {
		return "", errors.Errorf("call %s is %s, cannot accept", id, row.Status)
	}

	s.mu.Lock()
	s.state.Incoming = nil
	s.state.ActiveCallID = row.ID
	s.state.RemoteHangup = false
	s.mu.Unlock()

	log.Info().Str("call_id", id.String()).Msg("Call accepted")
	return row.Channel, nil
}

// RejectCall declines a ringing intent. Rejecting twice, or rejecting an
// intent that is already gone, is a no-op.
func (s *DirectCallService) RejectCall(ctx context.Context, id domain.CallID) error {
	matched, err := s.transition(ctx, id, domain.StatusRinging, domain.StatusRejected)
	if err != nil {
		return err
	}
	if matched == 0 {
		// Already terminal or already deleted; either way resolved.
		log.Debug().Str("call_id", id.String()).Msg("Reject matched no ringing row")
	}

	s.mu.Lock()
	if s.state.Incoming != nil && s.state.Incoming.ID == id {
		s.state.Incoming = nil
	}
	s.mu.Unlock()
	return nil
}

// CancelCall is the caller withdrawing before the callee responds.
func (s *DirectCallService) CancelCall(ctx context.Context, id domain.CallID) error {
	if _, err := s.transition(ctx, id, domain.StatusRinging, domain.StatusEnded); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state.Outgoing != nil && s.state.Outgoing.ID == id {
		s.state.Outgoing = nil
	}
	s.mu.Unlock()
	return nil
}

// EndCall hangs up whatever live call the local user is part of, in either
// role. It matches by a role-agnostic filter so the caller does not need
// to remember which side it was on.
func (s *DirectCallService) EndCall(ctx context.Context) error {
	status := domain.StatusEnded
	now := time.Now().UTC()
	live := query.In("status", domain.LiveStatusValues()...)

	_, err := s.registry.CallIntents().Update(ctx, s.involvesMe(live), port.IntentPatch{
		Status:    &status,
		UpdatedAt: &now,
	})
	if err != nil {
		return errors.Wrap(err, "end call")
	}

	s.mu.Lock()
	s.state.Outgoing = nil
	s.state.Incoming = nil
	s.state.ActiveCallID = ""
	s.mu.Unlock()

	log.Info().Str("user", s.user).Msg("Call ended")
	return nil
}

// History returns the local user's settled calls, newest state as stored.
func (s *DirectCallService) History(ctx context.Context) ([]domain.CallIntent, error) {
	terminal := query.In("status",
		domain.StatusRejected, domain.StatusEnded, domain.StatusMissed)
	return s.registry.CallIntents().Find(ctx, s.involvesMe(terminal))
}

// State returns a copy of the current observable view.
func (s *DirectCallService) State() DirectState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition is the shared "from -> to by id" absolute-state write.
func (s *DirectCallService) transition(ctx context.Context, id domain.CallID, from, to domain.CallStatus) (int64, error) {
	now := time.Now().UTC()
	matched, err := s.registry.CallIntents().Update(ctx,
		query.Where(query.Eq("id", id), query.Eq("status", from)),
		port.IntentPatch{Status: &to, UpdatedAt: &now})
	if err != nil {
		return 0, errors.Wrapf(err, "transition %s to %s", id, to)
	}
	return matched, nil
}

// Run consumes the change feed for rows involving the local user until ctx
// is cancelled. This is the fast path; Reconcile remains authoritative.
func (s *DirectCallService) Run(ctx context.Context) error {
	events, err := s.feed.Subscribe(ctx, domain.TableCallIntents, s.involvesMe())
	if err != nil {
		return errors.Wrap(err, "subscribe call intents")
	}
	for ev := range events {
		s.apply(ev)
	}
	return nil
}

func (s *DirectCallService) apply(ev port.Event) {
	switch ev.Type {
	case port.EventInsert, port.EventUpdate:
	case port.EventDelete:
		// Deletes only happen as stale-row purges; the replacing insert
		// carries the state that matters.
		return
	default:
		log.Warn().Str("type", string(ev.Type)).Msg("Unknown feed event type, dropping")
		return
	}

	intent, err := domain.DecodeCallIntent(ev.Row)
	if err != nil {
		log.Warn().Err(err).Msg("Malformed call intent event, dropping")
		return
	}
	if !intent.Involves(s.user) {
		return
	}
	s.observe(intent)
}

// observe folds one registry-observed row into the local view. Shared by
// the push path and the poll path; most recently observed wins.
func (s *DirectCallService) observe(intent domain.CallIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch intent.Status {
	case domain.StatusRinging:
		if intent.Callee == s.user {
			s.state.Incoming = &intent
		} else {
			s.state.Outgoing = &intent
		}
	case domain.StatusAccepted:
		s.state.ActiveCallID = intent.ID
		s.state.RemoteHangup = false
		if intent.Caller == s.user {
			s.state.Outgoing = nil
		} else {
			s.state.Incoming = nil
		}
	default: // terminal
		if s.state.Incoming != nil && s.state.Incoming.ID == intent.ID {
			s.state.Incoming = nil
		}
		if s.state.Outgoing != nil && s.state.Outgoing.ID == intent.ID {
			s.state.Outgoing = nil
		}
		if s.state.ActiveCallID == intent.ID {
			s.state.ActiveCallID = ""
			s.state.RemoteHangup = true
		}
	}
}

// Reconcile re-reads the registry and rebuilds the view from scratch. A
// stale incoming prompt or in-call flag is corrected within one tick even
// if every push event was missed.
func (s *DirectCallService) Reconcile(ctx context.Context) error {
	live := query.In("status", domain.LiveStatusValues()...)
	rows, err := s.registry.CallIntents().Find(ctx, s.involvesMe(live))
	if err != nil {
		return errors.Wrap(err, "reconcile direct calls")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wasActive := s.state.ActiveCallID
	s.state.Incoming = nil
	s.state.Outgoing = nil
	s.state.ActiveCallID = ""

	for i := range rows {
		row := rows[i]
		switch row.Status {
		case domain.StatusRinging:
			if row.Callee == s.user {
				s.state.Incoming = &row
			} else {
				s.state.Outgoing = &row
			}
		case domain.StatusAccepted:
			s.state.ActiveCallID = row.ID
		}
	}

	if wasActive != "" && s.state.ActiveCallID == "" {
		// The call we were in ended out-of-band.
		s.state.RemoteHangup = true
		log.Info().Str("call_id", wasActive.String()).Msg("Active call ended remotely")
	}
	return nil
}
