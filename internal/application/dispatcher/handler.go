package dispatcher

import (
	"context"

	"github.com/expenseflow/approval-engine/internal/domain/event"
)

// Handler reacts to a workflow event. Handlers run after the originating transaction commits,
// so a failing handler never rolls back a claim transition.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}
