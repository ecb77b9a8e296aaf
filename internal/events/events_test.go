package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("down") }

func TestBusEmitsToPublisher(t *testing.T) {
	mem := &Memory{}
	bus := NewBus(mem, nil)
	bus.Emit(context.Background(), RideCreated, 4, map[string]any{"ride_id": 1})
	bus.Emit(context.Background(), RideAccepted, 5, nil)

	assert.Equal(t, []string{RideCreated, RideAccepted}, mem.Types())
	got := mem.Events()[0]
	assert.Equal(t, uint(4), got.ActorID)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestBusSwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(failing{}, slog.New(slog.NewTextHandler(&buf, nil)))
	bus.Emit(context.Background(), RideCancelled, 1, nil)
	assert.Contains(t, buf.String(), "event publish failed")

	var nilBus *Bus
	assert.NotPanics(t, func() { nilBus.Emit(context.Background(), RideCancelled, 1, nil) })
}
