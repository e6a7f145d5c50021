package mealplan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"meal-planner/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMealPlan(t *testing.T) {
	var (
		mu       sync.Mutex
		lastUser string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		lastUser = r.Header.Get("X-User-ID")
		mu.Unlock()

		switch r.URL.Path {
		case "/meal-plans/plan-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"plan-1","userId":"user-1","recipes":[
				{"recipeId":"r1","title":"Salmon Bowl","ingredients":[{"ingredientId":"i1","name":"salmon fillet","amount":6,"unit":"oz"}]},
				{"recipeId":"r2","title":"Lemon Cake","multiplier":2,"ingredients":[{"ingredientId":"i2","name":"lemon","amount":1,"unit":"whole"}]}
			]}`))
		case "/meal-plans/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(&config.MealPlanConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		plan, err := c.GetMealPlan(ctx, "user-1", "plan-1")
		require.NoError(t, err)
		mu.Lock()
		assert.Equal(t, "user-1", lastUser)
		mu.Unlock()
		require.Len(t, plan.Recipes, 2)
		assert.Equal(t, 1.0, plan.Recipes[0].Multiplier)
		assert.Equal(t, 2.0, plan.Recipes[1].Multiplier)
		assert.Equal(t, "salmon fillet", plan.Recipes[0].Ingredients[0].Name)
	})

	t.Run("other user", func(t *testing.T) {
		_, err := c.GetMealPlan(ctx, "user-2", "plan-1")
		assert.ErrorIs(t, err, ErrMealPlanNotFound)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := c.GetMealPlan(ctx, "user-1", "nope")
		assert.ErrorIs(t, err, ErrMealPlanNotFound)
	})

	t.Run("upstream failure", func(t *testing.T) {
		_, err := c.GetMealPlan(ctx, "user-1", "broken")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMealPlanNotFound)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewClient(&config.MealPlanConfig{}).GetMealPlan(ctx, "user-1", "plan-1")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}
