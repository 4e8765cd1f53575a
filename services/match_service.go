package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"memory-match/game"
	"memory-match/metrics"
	"memory-match/models"
	"memory-match/store"
)

// BoardNotifier relays committed board changes to realtime subscribers.
type BoardNotifier interface {
	Publish(matchID string, v any) error
}

// MatchService runs the move pipeline against the persisted match: claim the
// turn lock, apply the move, commit (transactionally when the match
// finishes) and release the lock on every failure path.
type MatchService struct {
	Store   store.MatchStore
	Engine  *game.Engine
	Players *ProgressionService
	Metrics metrics.GameMetrics
	// Notifier is optional.
	Notifier BoardNotifier
	Clock    game.Clock
	// Lease bounds how long a crashed mover can keep the turn locked.
	Lease time.Duration
	// PartialUpdates selects patches over full boards for watchers and the notifier.
	PartialUpdates bool
}

// MoveOutcome is the result of a committed move.
type MoveOutcome struct {
	Match  *models.Match
	Result game.MoveResult
}

func NewMatchService(s store.MatchStore, engine *game.Engine, players *ProgressionService, m metrics.GameMetrics, lease time.Duration) *MatchService {
	if m == nil {
		m = metrics.Noop{}
	}
	return &MatchService{
		Store:          s,
		Engine:         engine,
		Players:        players,
		Metrics:        m,
		Clock:          engine.Clock,
		Lease:          lease,
		PartialUpdates: true,
	}
}

// SubmitMove reveals cardID on behalf of playerID.
func (s *MatchService) SubmitMove(ctx context.Context, matchID, playerID, cardID string) (*MoveOutcome, error) {
	log := logrus.WithFields(logrus.Fields{
		"match_id":  matchID,
		"player_id": playerID,
		"card_id":   cardID,
	})
	now := s.Clock.Now()
	token := uuid.NewString()

	claimed, err := s.Store.ClaimTurn(ctx, store.Claim{
		MatchID:  matchID,
		PlayerID: playerID,
		Token:    token,
		Now:      now,
		Until:    now.Add(s.Lease),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotClaimed) {
			return nil, s.rejected(ctx, log, matchID, playerID)
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("match %s: %w", matchID, err)
		}
		return nil, fmt.Errorf("failed to claim turn: %w", err)
	}

	prev := claimed.Clone()
	m := claimed
	log = log.WithField("stage", m.Stage.String())

	if !m.Stage.Valid() {
		s.release(ctx, log, matchID, token)
		return nil, s.consistency(log, game.Errorf(game.ErrInvalidStage, "stage %d", int(m.Stage)))
	}
	enemyID, ok := m.Opponent(playerID)
	if !ok {
		s.release(ctx, log, matchID, token)
		return nil, s.consistency(log, game.Errorf(game.ErrCorruptTurn, "active player %s is not in the match", playerID))
	}

	res, err := s.Engine.ApplyMove(m, playerID, enemyID, cardID)
	if err != nil {
		s.release(ctx, log, matchID, token)
		if kind, _ := game.KindOf(err); kind == game.KindConsistency {
			return nil, s.consistency(log, err)
		}
		s.Metrics.AddMove("rejected", s.Clock.Now().Sub(now))
		log.WithError(err).Debug("move rejected")
		return nil, err
	}

	if res.Finished {
		titles := s.titles(ctx)
		err = s.Store.CommitFinish(ctx, m, token, res.Settlement.Changes(), titles)
	} else {
		err = s.Store.CommitMove(ctx, m, token)
	}
	if err != nil {
		s.release(ctx, log, matchID, token)
		if errors.Is(err, store.ErrLockLost) {
			s.Metrics.AddTurnConflict()
			log.Warn("turn lock lost before commit")
			return nil, game.Wrap(game.ErrTurnConflict, err)
		}
		if res.Finished {
			return nil, s.consistency(log, game.Wrap(game.ErrPartialCommit, err))
		}
		return nil, fmt.Errorf("failed to commit move: %w", err)
	}

	result := "miss"
	switch {
	case res.Finished:
		result = "finish"
	case res.Matched:
		result = "match"
	case m.Stage == models.StageAwaitingSecondReveal:
		result = "reveal"
	}
	s.Metrics.AddMove(result, s.Clock.Now().Sub(now))
	log.WithFields(logrus.Fields{"result": result, "revision": m.Revision}).Debug("move committed")

	if res.Finished {
		outcome := "decisive"
		if res.Settlement.Draw {
			outcome = "draw"
		}
		s.Metrics.AddMatchFinished(outcome)
		log.WithFields(logrus.Fields{
			"winner":       res.Settlement.WinnerID,
			"winner_delta": res.Settlement.WinnerDelta,
			"loser":        res.Settlement.LoserID,
			"loser_delta":  res.Settlement.LoserDelta,
			"draw":         res.Settlement.Draw,
		}).Info("🏁 match finished")
	}

	s.publish(prev, m)
	return &MoveOutcome{Match: m, Result: res}, nil
}

// rejected explains why a claim matched nothing. It never mutates the match.
func (s *MatchService) rejected(ctx context.Context, log *logrus.Entry, matchID, playerID string) error {
	m, err := s.Store.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("match %s: %w", matchID, err)
		}
		return err
	}
	switch {
	case !m.IsParticipant(playerID):
		return game.ErrNotParticipant
	case m.Stage == models.StageFinished:
		return game.ErrMatchFinished
	case !m.Stage.Valid():
		return s.consistency(log, game.Errorf(game.ErrInvalidStage, "stage %d", int(m.Stage)))
	case m.Turn.PlayerID == "":
		return s.consistency(log, game.Errorf(game.ErrCorruptTurn, "stage %s", m.Stage))
	case m.Turn.PlayerID != playerID:
		return game.ErrNotYourTurn
	default:
		// Same player, lock held by another in-flight move.
		s.Metrics.AddTurnConflict()
		log.Debug("turn lock held by another request")
		return game.ErrTurnConflict
	}
}

func (s *MatchService) consistency(log *logrus.Entry, err error) error {
	code := "unknown"
	var ge *game.Error
	if errors.As(err, &ge) {
		code = ge.Code
	}
	s.Metrics.AddConsistencyError(code)
	log.WithError(err).Error("❌ match consistency error")
	return err
}

// release restores the pre-move turn. It runs even when ctx is cancelled.
func (s *MatchService) release(ctx context.Context, log *logrus.Entry, matchID, token string) {
	err := s.Store.ReleaseTurn(context.WithoutCancel(ctx), matchID, token)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrLockLost):
		log.Debug("turn lock already released")
	default:
		log.WithError(err).Error("failed to release turn lock")
	}
}

func (s *MatchService) titles(ctx context.Context) store.TitleFunc {
	if s.Players == nil {
		return nil
	}
	return s.Players.titlesOrDefault(ctx)
}

// RequestTakeover lets the idle participant seize the turn once the active
// player's deadline has passed. Before that it is a no-op that reports false.
func (s *MatchService) RequestTakeover(ctx context.Context, matchID, playerID string) (bool, *models.Match, error) {
	log := logrus.WithFields(logrus.Fields{"match_id": matchID, "player_id": playerID})

	m, err := s.Store.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil, fmt.Errorf("match %s: %w", matchID, err)
		}
		return false, nil, err
	}
	if !m.IsParticipant(playerID) {
		return false, nil, game.ErrNotParticipant
	}
	if m.Stage == models.StageFinished {
		return false, m, game.ErrMatchFinished
	}
	if !s.Clock.CanTakeOver(m, playerID) {
		log.Debug("takeover not allowed yet")
		return false, m, nil
	}

	updated, err := s.Store.TakeOver(ctx, matchID, playerID, s.Clock.Now(), s.Clock.DeadlineOnMove(m.TurnDuration()))
	if errors.Is(err, store.ErrNotClaimed) {
		// Another request changed the match first.
		current, gerr := s.Store.GetMatch(ctx, matchID)
		if gerr != nil {
			return false, nil, gerr
		}
		return false, current, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to take over turn: %w", err)
	}

	s.Metrics.AddTakeover()
	log.WithField("previous_player", m.Turn.PlayerID).Info("⏱️ turn taken over")
	s.publish(m, updated)
	return true, updated, nil
}

// GetBoard returns the client-safe projection of a match. Spectators may
// read any match.
func (s *MatchService) GetBoard(ctx context.Context, matchID string) (game.Board, error) {
	m, err := s.Store.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return game.Board{}, fmt.Errorf("match %s: %w", matchID, err)
		}
		return game.Board{}, err
	}
	return game.ProjectBoard(m), nil
}

// ActiveMatches lists the unfinished matches playerID takes part in.
func (s *MatchService) ActiveMatches(ctx context.Context, playerID string) ([]game.Board, error) {
	ms, err := s.Store.ActiveMatches(ctx, playerID)
	if err != nil {
		return nil, err
	}
	boards := make([]game.Board, 0, len(ms))
	for i := range ms {
		boards = append(boards, game.ProjectBoard(&ms[i]))
	}
	return boards, nil
}

// BoardUpdate carries either a patch or a full board, depending on the
// service's update mode.
type BoardUpdate struct {
	Patch *game.BoardPatch
	Board *game.Board
}

// Watch returns the current board and a channel of subsequent updates. The
// channel is closed when ctx is done.
func (s *MatchService) Watch(ctx context.Context, matchID string) (game.Board, <-chan BoardUpdate, error) {
	changes, err := s.Store.Watch(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return game.Board{}, nil, fmt.Errorf("match %s: %w", matchID, err)
		}
		return game.Board{}, nil, err
	}
	current, err := s.GetBoard(ctx, matchID)
	if err != nil {
		return game.Board{}, nil, err
	}

	out := make(chan BoardUpdate, 1)
	go func() {
		defer close(out)
		last := current
		for m := range changes {
			next := game.ProjectBoard(m)
			if next.Revision <= last.Revision {
				continue
			}
			update := BoardUpdate{}
			if s.PartialUpdates {
				patch := game.DiffBoards(last, next)
				update.Patch = &patch
			} else {
				update.Board = &next
			}
			last = next
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return current, out, nil
}

func (s *MatchService) publish(prev, next *models.Match) {
	if s.Notifier == nil {
		return
	}
	var payload any
	board := game.ProjectBoard(next)
	if s.PartialUpdates {
		payload = game.DiffBoards(game.ProjectBoard(prev), board)
	} else {
		payload = board
	}
	if err := s.Notifier.Publish(next.ID, payload); err != nil {
		logrus.WithError(err).WithField("match_id", next.ID).Warn("failed to publish board update")
	}
}
