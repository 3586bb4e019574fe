// Package brain defines the Agent Brain contract: the decision-making
// component a dispatched mention batch is handed to. The Dispatch Loop
// (pkg/runtime/dispatch) depends only on this interface, never on a
// concrete model integration, so the gate that avoids invoking it on an
// empty batch is testable without one.
package brain

import (
	"context"

	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/internal/hub/model"
	"github.com/kandev/coordhub/pkg/runtime/classifier"
)

// Action is one thing the Brain decided to do in response to a batch of
// mention deliveries: reply into a thread, addressing zero or more
// further agents.
type Action struct {
	ThreadID string
	Body     string
	Mentions []string
}

// Brain decides what to do with a non-empty batch of mention
// deliveries. Implementations are expected to call out to a model;
// MockBrain exists so the Dispatch Loop's cost-gate and error-handling
// paths can be exercised without one.
type Brain interface {
	Decide(ctx context.Context, selfID string, batch []model.MentionDelivery) ([]Action, error)
}

// MockBrain is a deterministic stand-in for a real model integration: it
// classifies each delivery's body and echoes a fixed acknowledgement,
// addressed back to the sender. Useful for exercising the Dispatch Loop
// and for tests.
type MockBrain struct {
	table  []classifier.Rule
	logger *logger.Logger
}

// NewMockBrain creates a MockBrain using classifier.DefaultTable().
func NewMockBrain(log *logger.Logger) *MockBrain {
	return &MockBrain{
		table:  classifier.DefaultTable(),
		logger: log.WithFields(zap.String("component", "mock-brain")),
	}
}

// Decide implements Brain.
func (b *MockBrain) Decide(ctx context.Context, selfID string, batch []model.MentionDelivery) ([]Action, error) {
	actions := make([]Action, 0, len(batch))
	for _, d := range batch {
		class := classifier.Classify(d.Body, b.table)
		b.logger.Debug("classified mention delivery",
			zap.String("thread_id", d.ThreadID), zap.String("sender_id", d.SenderID), zap.String("class", string(class)))

		actions = append(actions, Action{
			ThreadID: d.ThreadID,
			Body:     "acknowledged (" + string(class) + ")",
			Mentions: []string{d.SenderID},
		})
	}
	return actions, nil
}
