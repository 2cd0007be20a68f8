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

// ErrCallEnded means the target group call is no longer active and can
// never come back; the caller should start a fresh one instead.
var ErrCallEnded = errors.New("group call has ended")

// GroupState is the client-facing view of group calling.
type GroupState struct {
	ActiveGroupCalls  []domain.GroupCall
	CurrentGroupCall  *domain.GroupCall
	Participants      []domain.GroupCallParticipant
	IncomingGroupCall *domain.GroupCall
}

// GroupCallCoordinator owns the multi-party session lifecycle: none ->
// active -> ended, monotonic. No single party owns teardown; the last
// active participant to leave closes the room, and every client adopts
// the registry's verdict on its next reconcile.
type GroupCallCoordinator struct {
	user     string
	groupIDs []string
	registry port.Registry
	feed     port.ChangeFeed

	mu           sync.Mutex
	current      *domain.GroupCall
	participants []domain.GroupCallParticipant
	incoming     *domain.GroupCall
	active       []domain.GroupCall
	// surfaced remembers every call id already shown as an incoming
	// prompt, so a dismissed prompt is never re-shown for the same call.
	surfaced map[domain.CallID]struct{}
}

func NewGroupCallCoordinator(user string, groupIDs []string, registry port.Registry, feed port.ChangeFeed) *GroupCallCoordinator {
	return &GroupCallCoordinator{
		user:     user,
		groupIDs: groupIDs,
		registry: registry,
		feed:     feed,
		surfaced: make(map[domain.CallID]struct{}),
	}
}

// StartGroupCall starts a call for the group, or joins the one already
// running: when an active row exists for groupID, "start" converges with
// "join" so two members pressing the button at once end up in one room.
func (s *GroupCallCoordinator) StartGroupCall(ctx context.Context, groupID, groupName string, isVideo bool) (domain.GroupCall, error) {
	existing, err := s.registry.GroupCalls().Find(ctx,
		query.Where(query.Eq("group_id", groupID), query.Eq("is_active", true)))
	if err != nil {
		return domain.GroupCall{}, errors.Wrap(err, "look up active group call")
	}
	if len(existing) > 0 {
		call, _, err := s.JoinGroupCall(ctx, existing[0].ID)
		return call, err
	}

	call := domain.NewGroupCall(groupID, groupName, s.user, isVideo)
	if err := s.registry.GroupCalls().Insert(ctx, call); err != nil {
		return domain.GroupCall{}, errors.Wrap(err, "insert group call")
	}
	me := domain.NewGroupCallParticipant(call.ID, s.user)
	if err := s.registry.Participants().Upsert(ctx, me); err != nil {
		return domain.GroupCall{}, errors.Wrap(err, "insert initiator participant")
	}

	s.mu.Lock()
	s.current = &call
	s.participants = []domain.GroupCallParticipant{me}
	s.incoming = nil
	s.surfaced[call.ID] = struct{}{} // never prompt for our own call
	s.mu.Unlock()

	log.Info().Str("call_id", call.ID.String()).Str("group_id", groupID).Bool("video", isVideo).Msg("Group call started")
	return call, nil
}

// JoinGroupCall puts the local user into an active call. Rejoin after a
// drop reactivates the existing participant row; there is never a second
// row for the same (call, user).
func (s *GroupCallCoordinator) JoinGroupCall(ctx context.Context, id domain.CallID) (domain.GroupCall, []domain.GroupCallParticipant, error) {
	rows, err := s.registry.GroupCalls().Find(ctx, query.Where(query.Eq("id", id)))
	if err != nil {
		return domain.GroupCall{}, nil, errors.Wrap(err, "look up group call")
	}
	if len(rows) == 0 {
		return domain.GroupCall{}, nil, port.ErrNotFound
	}
	call := rows[0]
	if !call.IsActive {
		return domain.GroupCall{}, nil, ErrCallEnded
	}

	if err := s.registry.Participants().Upsert(ctx, domain.NewGroupCallParticipant(id, s.user)); err != nil {
		return domain.GroupCall{}, nil, errors.Wrap(err, "upsert participant")
	}
	roster, err := s.roster(ctx, id)
	if err != nil {
		return domain.GroupCall{}, nil, err
	}

	s.mu.Lock()
	s.current = &call
	s.participants = roster
	s.surfaced[call.ID] = struct{}{}
	if s.incoming != nil && s.incoming.ID == id {
		s.incoming = nil
	}
	s.mu.Unlock()

	log.Info().Str("call_id", id.String()).Int("roster", len(roster)).Msg("Joined group call")
	return call, roster, nil
}

// LeaveGroupCall marks the local user as left and, when nobody active
// remains, closes the room. Ending an already-ended call writes the same
// absolute state again, so concurrent leaves are safe.
func (s *GroupCallCoordinator) LeaveGroupCall(ctx context.Context) error {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return nil
	}

	now := time.Now().UTC()
	inactive := false
	_, err := s.registry.Participants().Update(ctx,
		query.Where(query.Eq("call_id", current.ID), query.Eq("user_address", s.user)),
		port.ParticipantPatch{IsActive: &inactive, LeftAt: &now})
	if err != nil {
		return errors.Wrap(err, "mark participant left")
	}

	remaining, err := s.roster(ctx, current.ID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		ended := false
		endedAt := time.Now().UTC()
		matched, err := s.registry.GroupCalls().Update(ctx,
			query.Where(query.Eq("id", current.ID), query.Eq("is_active", true)),
			port.GroupCallPatch{IsActive: &ended, EndedAt: &endedAt})
		if err != nil {
			return errors.Wrap(err, "end group call")
		}
		if matched > 0 {
			log.Info().Str("call_id", current.ID.String()).Msg("Last participant left, group call ended")
		}
	}

	s.mu.Lock()
	s.current = nil
	s.participants = nil
	s.mu.Unlock()
	return nil
}

// DismissIncoming clears the incoming prompt. The call id stays in the
// surfaced set, so the same call never prompts again.
func (s *GroupCallCoordinator) DismissIncoming() {
	s.mu.Lock()
	s.incoming = nil
	s.mu.Unlock()
}

// State returns a copy of the current observable view.
func (s *GroupCallCoordinator) State() GroupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := GroupState{
		CurrentGroupCall:  s.current,
		IncomingGroupCall: s.incoming,
	}
	st.ActiveGroupCalls = append(st.ActiveGroupCalls, s.active...)
	st.Participants = append(st.Participants, s.participants...)
	return st
}

func (s *GroupCallCoordinator) roster(ctx context.Context, id domain.CallID) ([]domain.GroupCallParticipant, error) {
	roster, err := s.registry.Participants().Find(ctx,
		query.Where(query.Eq("call_id", id), query.Eq("is_active", true)))
	if err != nil {
		return nil, errors.Wrap(err, "fetch roster")
	}
	return roster, nil
}

// Run consumes group-call feed events for the user's groups until ctx is
// cancelled.
func (s *GroupCallCoordinator) Run(ctx context.Context) error {
	ids := make([]any, len(s.groupIDs))
	for i, g := range s.groupIDs {
		ids[i] = g
	}
	events, err := s.feed.Subscribe(ctx, domain.TableGroupCalls, query.Where(query.In("group_id", ids...)))
	if err != nil {
		return errors.Wrap(err, "subscribe group calls")
	}
	for ev := range events {
		s.apply(ev)
	}
	return nil
}

func (s *GroupCallCoordinator) apply(ev port.Event) {
	switch ev.Type {
	case port.EventInsert, port.EventUpdate:
	default:
		return
	}
	call, err := domain.DecodeGroupCall(ev.Row)
	if err != nil {
		log.Warn().Err(err).Msg("Malformed group call event, dropping")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !call.IsActive {
		if s.current != nil && s.current.ID == call.ID {
			log.Info().Str("call_id", call.ID.String()).Msg("Group call ended remotely")
			s.current = nil
			s.participants = nil
		}
		if s.incoming != nil && s.incoming.ID == call.ID {
			s.incoming = nil
		}
		return
	}
	s.maybeSurface(call)
}

// maybeSurface shows an incoming prompt for a newly seen active call.
// Suppressed while already in a call, for calls we started ourselves, and
// for ids surfaced before. Caller holds s.mu.
func (s *GroupCallCoordinator) maybeSurface(call domain.GroupCall) {
	if call.StartedBy == s.user {
		s.surfaced[call.ID] = struct{}{}
		return
	}
	if s.current != nil {
		return
	}
	if _, seen := s.surfaced[call.ID]; seen {
		return
	}
	if s.incoming != nil {
		return
	}
	s.incoming = &call
	s.surfaced[call.ID] = struct{}{}
	log.Info().Str("call_id", call.ID.String()).Str("group_id", call.GroupID).Msg("Incoming group call")
}

// Reconcile is the authoritative catch-up. In a call it re-fetches the
// roster and the call's active flag, adopting an out-of-band end; idle it
// discovers newly active calls across the user's groups.
func (s *GroupCallCoordinator) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current != nil {
		return s.reconcileInCall(ctx, current.ID)
	}
	return s.reconcileIdle(ctx)
}

func (s *GroupCallCoordinator) reconcileInCall(ctx context.Context, id domain.CallID) error {
	rows, err := s.registry.GroupCalls().Find(ctx, query.Where(query.Eq("id", id)))
	if err != nil {
		return errors.Wrap(err, "reconcile group call")
	}
	if len(rows) == 0 || !rows[0].IsActive {
		// Someone else's leave fired the last-one-out rule, or the call
		// was torn down. The registry's verdict is final.
		s.mu.Lock()
		if s.current != nil && s.current.ID == id {
			s.current = nil
			s.participants = nil
		}
		s.mu.Unlock()
		log.Info().Str("call_id", id.String()).Msg("Group call no longer active, leaving local view")
		return nil
	}

	roster, err := s.roster(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.current != nil && s.current.ID == id {
		s.participants = roster
	}
	s.mu.Unlock()
	return nil
}

func (s *GroupCallCoordinator) reconcileIdle(ctx context.Context) error {
	if len(s.groupIDs) == 0 {
		return nil
	}
	ids := make([]any, len(s.groupIDs))
	for i, g := range s.groupIDs {
		ids[i] = g
	}
	calls, err := s.registry.GroupCalls().Find(ctx,
		query.Where(query.In("group_id", ids...), query.Eq("is_active", true)))
	if err != nil {
		return errors.Wrap(err, "discover group calls")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = calls
	if s.incoming != nil {
		// Drop the prompt if its call ended since the last tick.
		still := false
		for _, c := range calls {
			if c.ID == s.incoming.ID {
				still = true
				break
			}
		}
		if !still {
			s.incoming = nil
		}
	}
	for _, c := range calls {
		s.maybeSurface(c)
	}
	return nil
}
