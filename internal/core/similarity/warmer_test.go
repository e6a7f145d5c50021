package similarity

import (
	"testing"
	"time"

	"meal-planner/internal/core/comparison"
	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmerFillsCache(t *testing.T) {
	common.InitNopLogger()
	store := newMemStore()
	cls := &fakeClassifier{verdicts: map[comparison.Pair]comparison.Verdict{
		comparison.NewPair("cod", "haddock"): {Status: common.StatusSimilar},
	}}
	engine, _ := newTestEngine(store, cls, nil)

	w := NewWarmer(engine, &config.WarmerConfig{Workers: 1, MaxSize: 4})
	w.Start()
	defer w.Close()

	ok := w.Enqueue([]common.IngredientLine{
		line("a", "cod", 1, "lb", "r1"),
		line("b", "haddock", 1, "lb", "r2"),
	})
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return w.GetQueueStatus().ProcessedCount == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, store.has("cod", "haddock"))
}

func TestWarmerEnqueue(t *testing.T) {
	common.InitNopLogger()
	engine, _ := newTestEngine(newMemStore(), &fakeClassifier{}, nil)

	t.Run("single line is not worth warming", func(t *testing.T) {
		w := NewWarmer(engine, &config.WarmerConfig{Workers: 1, MaxSize: 1})
		assert.False(t, w.Enqueue([]common.IngredientLine{line("a", "cod", 1, "lb", "r1")}))
	})

	t.Run("drops when full", func(t *testing.T) {
		// 不啟動 worker，隊列不會被消化
		w := NewWarmer(engine, &config.WarmerConfig{Workers: 1, MaxSize: 1})
		lines := []common.IngredientLine{
			line("a", "cod", 1, "lb", "r1"),
			line("b", "haddock", 1, "lb", "r2"),
		}
		assert.True(t, w.Enqueue(lines))
		assert.False(t, w.Enqueue(lines))

		status := w.GetQueueStatus()
		assert.Equal(t, 1, status.QueueLength)
		assert.Equal(t, int64(1), status.DroppedCount)
	})

	t.Run("closed warmer rejects jobs", func(t *testing.T) {
		w := NewWarmer(engine, &config.WarmerConfig{Workers: 2, MaxSize: 4})
		w.Start()
		w.Close()
		assert.False(t, w.Enqueue([]common.IngredientLine{
			line("a", "cod", 1, "lb", "r1"),
			line("b", "haddock", 1, "lb", "r2"),
		}))
	})
}
