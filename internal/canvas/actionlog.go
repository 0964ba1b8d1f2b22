// Package canvas holds the server-side drawing state: the per-room
// append-only action log with its global undo/redo stack, the room user
// roster, and the lazy room registry. Nothing in this package does I/O or
// locking; all mutation happens on the session manager's event loop.
package canvas

import (
	"time"

	"drawboard/internal/models"

	"github.com/google/uuid"
)

// ActionLog is the single source of truth for one room's drawing history.
// Entries are appended in arrival order and never reordered; undo flips an
// entry's Undone flag rather than removing it.
type ActionLog struct {
	history   []*models.Stroke
	redoStack []*models.Stroke // most-recently-undone last
}

func NewActionLog() *ActionLog {
	return &ActionLog{}
}

// Append accepts a validated stroke into the log, assigning an opId and
// timestamp when the client did not supply them, and returns the canonical
// entry to broadcast. Every append clears the redo stack: a new stroke
// destroys redo history (last-writer-wins, not a tree).
func (l *ActionLog) Append(s *models.Stroke) *models.Stroke {
	if s.OpID == "" {
		s.OpID = uuid.NewString()
	}
	if s.TS == 0 {
		s.TS = time.Now().UnixMilli()
	}
	s.Undone = false

	l.history = append(l.history, s)
	l.redoStack = nil
	return s
}

// Active returns all entries with Undone=false, in append order. This is
// the canonical replay set sent on join and reconnect.
func (l *ActionLog) Active() []*models.Stroke {
	active := make([]*models.Stroke, 0, len(l.history))
	for _, s := range l.history {
		if !s.Undone {
			active = append(active, s)
		}
	}
	return active
}

// Undo flips the most recent active entry to undone, pushes it onto the
// redo stack and returns it. With no active entry it returns nil: undo on
// an empty canvas is a no-op, not an error.
func (l *ActionLog) Undo() *models.Stroke {
	for i := len(l.history) - 1; i >= 0; i-- {
		if !l.history[i].Undone {
			l.history[i].Undone = true
			l.redoStack = append(l.redoStack, l.history[i])
			return l.history[i]
		}
	}
	return nil
}

// Redo restores the most recently undone entry, or returns nil when the
// redo stack is empty. Redo after undo with no intervening Append restores
// exactly the entry just undone.
func (l *ActionLog) Redo() *models.Stroke {
	if len(l.redoStack) == 0 {
		return nil
	}
	s := l.redoStack[len(l.redoStack)-1]
	l.redoStack = l.redoStack[:len(l.redoStack)-1]
	s.Undone = false
	return s
}

// Len reports the total number of entries, undone included.
func (l *ActionLog) Len() int {
	return len(l.history)
}
