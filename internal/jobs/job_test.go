package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_Table(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusQueued, StatusProcessing}:    true,
		{StatusQueued, StatusCompleted}:     true,
		{StatusQueued, StatusFailed}:        true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
	}
	all := []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Predicates(t *testing.T) {
	assert.True(t, StatusQueued.Pending())
	assert.True(t, StatusProcessing.Pending())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, Status("done").Valid())
	assert.True(t, StatusFailed.Valid())
}

func TestPredecessors(t *testing.T) {
	assert.Equal(t, []Status{StatusQueued}, predecessors(StatusProcessing))
	assert.Equal(t, []Status{StatusQueued, StatusProcessing}, predecessors(StatusCompleted))
	assert.Empty(t, predecessors(StatusQueued))
}

func TestJob_InputAndProcessingTime(t *testing.T) {
	text := "hello"
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	j := &Job{InputType: InputText, OriginalText: &text, CreatedAt: created, UpdatedAt: created.Add(2500 * time.Millisecond)}
	assert.Equal(t, "hello", j.Input())
	assert.Equal(t, 2500*time.Millisecond, j.ProcessingTime())

	j.InputType = InputURL
	assert.Equal(t, "", j.Input())

	j.UpdatedAt = created.Add(-time.Second)
	assert.Equal(t, time.Duration(0), j.ProcessingTime())
}

func TestInputHash_Deterministic(t *testing.T) {
	a := InputHash("A")
	assert.Equal(t, a, InputHash("A"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, InputHash("B"))
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", InputHash("abc"))
}
