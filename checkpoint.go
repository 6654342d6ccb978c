package codeact

import (
	"context"
	"errors"
)

// ErrNoCheckpoint is returned by LoadLatest when a session has nothing saved.
var ErrNoCheckpoint = errors.New("no checkpoint")

// Checkpoint is a persisted conversation snapshot. IDs are UUIDv7 so the
// lexical order of IDs within a session is their creation order.
type Checkpoint struct {
	ID        string    `json:"id"`
	Session   string    `json:"session"`
	CreatedAt int64     `json:"created_at"` // unix millis
	Messages  []Message `json:"messages"`
}

// NewCheckpoint snapshots msgs for session. System messages are dropped so a
// resumed run can supply its own prompt.
func NewCheckpoint(session string, msgs []Message) Checkpoint {
	return Checkpoint{
		ID:        NewID(),
		Session:   session,
		CreatedAt: NowMillis(),
		Messages:  WithoutSystem(msgs),
	}
}

// Checkpointer persists conversation snapshots per session.
type Checkpointer interface {
	// Save stores cp. Saving never overwrites an earlier checkpoint.
	Save(ctx context.Context, cp Checkpoint) error
	// LoadLatest returns the most recent checkpoint of session, or
	// ErrNoCheckpoint.
	LoadLatest(ctx context.Context, session string) (Checkpoint, error)
	// Clear removes every checkpoint of session.
	Clear(ctx context.Context, session string) error
}

// Resume loads the latest conversation of session and appends input. A
// session without checkpoints starts from input alone.
func Resume(ctx context.Context, c Checkpointer, session string, input ...Message) ([]Message, error) {
	cp, err := c.LoadLatest(ctx, session)
	switch {
	case errors.Is(err, ErrNoCheckpoint):
		return append([]Message(nil), input...), nil
	case err != nil:
		return nil, err
	}
	msgs := make([]Message, 0, len(cp.Messages)+len(input))
	msgs = append(msgs, cp.Messages...)
	return append(msgs, input...), nil
}
