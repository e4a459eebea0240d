package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gatelog/internal/attendance/models"
)

func event(kind models.EventKind, at time.Time) *models.EventRecord {
	return &models.EventRecord{
		Kind:       kind,
		OccurredAt: at,
		Status:     models.StatusPresent,
	}
}

func TestDecide(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	t.Run("no prior event accepts as-is", func(t *testing.T) {
		d := Decide(event(models.KindExit, base), nil)
		assert.Equal(t, models.StatusPresent, d.Status)
		assert.False(t, d.Contradiction)
		assert.Empty(t, d.Note)
	})

	t.Run("exit after exit is downgraded", func(t *testing.T) {
		prior := event(models.KindExit, base)
		d := Decide(event(models.KindExit, base.Add(time.Hour)), prior)
		assert.Equal(t, models.StatusUnknown, d.Status)
		assert.True(t, d.Contradiction)
		assert.Equal(t, NoteDuplicateExit, d.Note)
	})

	t.Run("exit before prior entry is downgraded", func(t *testing.T) {
		prior := event(models.KindEntry, base)
		d := Decide(event(models.KindExit, base.Add(-time.Hour)), prior)
		assert.Equal(t, models.StatusUnknown, d.Status)
		assert.True(t, d.Contradiction)
		assert.Contains(t, d.Note, "before")
	})

	t.Run("exit after entry in order is accepted", func(t *testing.T) {
		prior := event(models.KindEntry, base)
		d := Decide(event(models.KindExit, base.Add(time.Hour)), prior)
		assert.Equal(t, models.StatusPresent, d.Status)
		assert.False(t, d.Contradiction)
	})

	t.Run("entry after entry is downgraded symmetrically", func(t *testing.T) {
		prior := event(models.KindEntry, base)
		d := Decide(event(models.KindEntry, base.Add(time.Hour)), prior)
		assert.Equal(t, models.StatusUnknown, d.Status)
		assert.True(t, d.Contradiction)
		assert.Equal(t, NoteDuplicateEntry, d.Note)
	})

	t.Run("entry after exit is accepted", func(t *testing.T) {
		prior := event(models.KindExit, base)
		d := Decide(event(models.KindEntry, base.Add(time.Hour)), prior)
		assert.Equal(t, models.StatusPresent, d.Status)
		assert.False(t, d.Contradiction)
	})

	t.Run("supplied status survives acceptance", func(t *testing.T) {
		incoming := event(models.KindEntry, base)
		incoming.Status = models.StatusLate
		d := Decide(incoming, nil)
		assert.Equal(t, models.StatusLate, d.Status)
	})

	t.Run("prior record is never mutated", func(t *testing.T) {
		prior := event(models.KindExit, base)
		before := *prior
		_ = Decide(event(models.KindExit, base.Add(time.Minute)), prior)
		assert.Equal(t, before, *prior)
	})
}
