package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklog/internal/amqp"
	"worklog/internal/core"
	"worklog/internal/log"
	sheetsmem "worklog/internal/sheets/memory"
	"worklog/internal/storage/memory"
)

func TestMirrorWorker_HandleRuleChanged(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mirror := sheetsmem.NewMirror()
	w := NewMirrorWorker(store, mirror, 0, log.Discard())

	rule, err := store.Upsert(ctx, core.Capability{Verified: true}, "Reddit.exe", core.RuleInput{Classification: core.NonBillable})
	require.NoError(t, err)

	require.NoError(t, w.HandleRuleChanged(ctx, amqp.NewRuleUpsertedMessage(rule, "m1")))
	mirrored, _ := mirror.ReadRules(ctx)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "reddit", mirrored[0].AppName)
	assert.Equal(t, 1, mirror.Writes())

	// an event older than the last sync is already reflected
	stale := amqp.NewRuleDeletedMessage("reddit", "m1")
	stale.Timestamp = time.Now().Add(-time.Hour)
	require.NoError(t, w.HandleRuleChanged(ctx, stale))
	assert.Equal(t, 1, mirror.Writes())
}

func TestMirrorWorker_MirrorFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	mirror := sheetsmem.NewMirror()
	mirror.FailWith(errors.New("quota exceeded"))
	w := NewMirrorWorker(memory.NewStore(), mirror, 0, log.Discard())

	err := w.HandleRuleChanged(ctx, amqp.NewRuleDeletedMessage("x", "m1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestMirrorWorker_RunStopsWithContext(t *testing.T) {
	mirror := sheetsmem.NewMirror()
	w := NewMirrorWorker(memory.NewStore(), mirror, 10*time.Millisecond, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return mirror.Writes() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
