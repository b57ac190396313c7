package session

import (
	"context"
	"fmt"

	"sortbin/internal/ledger"
	"sortbin/internal/logging"
	"sortbin/internal/notifications"
	"sortbin/internal/scoring"
)

// ProximityResult acknowledges a proximity event.
type ProximityResult struct {
	Scored  bool
	Correct bool
	Message string
}

// OnProximityEvent records the sensor code and, when the session is awaiting
// a close event and code names a receptacle, scores the disposal and ends the
// session. Other codes are acknowledged without scoring.
func (m *Machine) OnProximityEvent(ctx context.Context, code int) (ProximityResult, error) {
	const op = "proximity"
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.current
	status := code
	if !s.awaitingClose || !scoring.IsScoringStatus(code) {
		s.lastProximity = &status
		return ProximityResult{}, nil
	}

	correct := scoring.IsCorrect(s.category, s.hasResult, code)
	verdict := "incorrect"
	if correct {
		verdict = "correct"
	}

	var message, scoreText string
	if s.user == nil {
		scoreText = "invalid"
		message = fmt.Sprintf("user_unknown disposal_%s current_score_%s", verdict, scoreText)
	} else {
		outcome := scoring.ScoreOutcome(s.user, correct, s.item)
		_, err := m.ledger.RecordOutcome(ctx, ledger.Outcome{
			Name:          s.user.Name,
			Score:         outcome.Score,
			CompleteTimes: outcome.CompleteTimes,
			ReminderItems: outcome.ReminderItems,
			Disposal: ledger.Disposal{
				Item:       s.item,
				Category:   string(s.category),
				StatusCode: code,
				Correct:    correct,
			},
		})
		if err != nil {
			return ProximityResult{}, newError(KindExternalServiceFailure, op, "ledger update failed", err)
		}
		updated := s.user.Clone()
		score := outcome.Score
		updated.Score = &score
		updated.CompleteTimes = outcome.CompleteTimes
		updated.ReminderItems = outcome.ReminderItems
		s.user = updated

		scoreText = scoring.FormatScore(outcome.Score)
		message = fmt.Sprintf("user%d name_%s disposal_%s current_score_%s", updated.ID, updated.Name, verdict, scoreText)
	}

	s.lastProximity = &status
	s.awaitingClose = false
	s.state = StateIdle
	s.lastOutcome = message
	m.send(ctx, message)

	userName := ""
	if s.user != nil {
		userName = s.user.Name
	}
	m.logger.InfoContext(ctx, "disposal scored",
		logging.String(logging.FieldEventType, "disposal_scored"),
		logging.String(logging.FieldSessionID, s.id),
		logging.String("user", userName),
		logging.String("item", s.item),
		logging.Int("status", code),
		logging.Bool("correct", correct),
		logging.String("score", scoreText),
	)
	disposal := notifications.Disposal{
		User:     userName,
		Item:     s.item,
		Category: string(s.category),
		Correct:  correct,
		Score:    scoreText,
	}
	m.notifyAsync(ctx, func(ctx context.Context) error {
		return m.notifier.NotifyDisposal(ctx, disposal)
	})
	return ProximityResult{Scored: true, Correct: correct, Message: message}, nil
}
