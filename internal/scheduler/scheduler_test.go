package scheduler

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/breadworks/bakeops/internal/adapter/repo/memory"
	"github.com/breadworks/bakeops/internal/usecase"
)

func TestUntilNextRun(t *testing.T) {
	t.Parallel()
	s := New(usecase.NewArchiveService(memory.NewStore(), 6, 24),
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute)

	t.Run("mid afternoon waits to midnight", func(t *testing.T) {
		s.Now = func() time.Time { return time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC) }
		assert.Equal(t, 8*time.Hour+30*time.Minute, s.untilNextRun())
	})

	t.Run("exactly midnight waits a full day", func(t *testing.T) {
		s.Now = func() time.Time { return time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC) }
		assert.Equal(t, 24*time.Hour, s.untilNextRun())
	})

	t.Run("one second before midnight", func(t *testing.T) {
		s.Now = func() time.Time { return time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC) }
		assert.Equal(t, time.Second, s.untilNextRun())
	})
}
