package shoppinglist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"meal-planner/internal/api/middleware"
	"meal-planner/internal/core/aggregation"
	"meal-planner/internal/core/units"
	"meal-planner/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	aggregateReq aggregation.AggregateRequest
	decisions    []aggregation.DecisionInput
	sizes        map[string]string
	userID       string
	listID       string
	err          error
}

func (f *fakeService) list() *common.ShoppingList {
	return &common.ShoppingList{ID: "list-1", UserID: f.userID, Status: common.ListStatusActive}
}

func (f *fakeService) Aggregate(_ context.Context, req aggregation.AggregateRequest) (*common.ShoppingList, error) {
	f.aggregateReq, f.userID = req, req.UserID
	if f.err != nil {
		return nil, f.err
	}
	return f.list(), nil
}

func (f *fakeService) ApplyDecisions(_ context.Context, userID, listID string, decisions []aggregation.DecisionInput) (*common.ShoppingList, error) {
	f.userID, f.listID, f.decisions = userID, listID, decisions
	if f.err != nil {
		return nil, f.err
	}
	return f.list(), nil
}

func (f *fakeService) PurchasePlan(_ context.Context, userID, listID string, sizes map[string]string) ([]aggregation.PurchaseLine, error) {
	f.userID, f.listID, f.sizes = userID, listID, sizes
	if f.err != nil {
		return nil, f.err
	}
	return []aggregation.PurchaseLine{{ItemID: "item-1", Name: "salmon", PackageSize: "16 oz", Plan: units.PurchasePlan{}}}, nil
}

func (f *fakeService) Get(_ context.Context, userID, listID string) (*common.ShoppingList, error) {
	f.userID, f.listID = userID, listID
	if f.err != nil {
		return nil, f.err
	}
	return f.list(), nil
}

func (f *fakeService) GetActive(_ context.Context, userID string) (*common.ShoppingList, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.list(), nil
}

func (f *fakeService) Delete(_ context.Context, userID, listID string) error {
	f.userID, f.listID = userID, listID
	return f.err
}

func newRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	common.InitNopLogger()
	r := gin.New()
	NewHandler(svc).Register(r.Group("/shopping-lists", middleware.RequireUser()))
	return r
}

func call(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) common.ErrorResponse {
	t.Helper()
	var resp common.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreate(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	body := `{
		"recipes": [{"recipeId": "r1", "title": "Pancakes", "multiplier": 2,
			"ingredients": [{"ingredientId": "flour", "name": "flour", "amount": 1.5, "unit": "cups"}]}],
		"pantry": [{"name": "flour", "amount": 1, "unit": "cup"}],
		"includeExistingList": true,
		"deferClassification": true
	}`
	w := call(r, http.MethodPost, "/shopping-lists", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req := svc.aggregateReq
	assert.Equal(t, "u1", req.UserID)
	require.Len(t, req.Recipes, 1)
	assert.Equal(t, 2.0, req.Recipes[0].Multiplier)
	assert.Equal(t, "flour", req.Recipes[0].Ingredients[0].Name)
	require.Len(t, req.Pantry, 1)
	assert.True(t, req.IncludeExistingList)
	assert.True(t, req.DeferClassification)

	var list common.ShoppingList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "list-1", list.ID)
}

func TestCreateValidation(t *testing.T) {
	r := newRouter(&fakeService{})

	t.Run("ingredient without name", func(t *testing.T) {
		w := call(r, http.MethodPost, "/shopping-lists", `{"recipes":[{"recipeId":"r1","ingredients":[{"amount":1}]}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, common.ErrCodeValidation, decodeError(t, w).Code)
	})

	t.Run("negative amount", func(t *testing.T) {
		w := call(r, http.MethodPost, "/shopping-lists", `{"recipes":[{"recipeId":"r1","ingredients":[{"name":"egg","amount":-1}]}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		w := call(r, http.MethodPost, "/shopping-lists", `{"recipes":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/shopping-lists", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", common.NewValidationError("recipes or mealPlanId is required"), http.StatusBadRequest, common.ErrCodeValidation},
		{"not found", common.ErrShoppingListNotFound, http.StatusNotFound, "SHOPPING_LIST_NOT_FOUND"},
		{"forbidden", common.ErrForbidden.WithMessage("無權存取此購物清單"), http.StatusForbidden, common.ErrCodeForbidden},
		{"unknown merge option", common.ErrMergeOptionNotFound.WithMessage("合併選項不存在: m1"), http.StatusBadRequest, "MERGE_OPTION_NOT_FOUND"},
		{"aggregation failure", common.ErrAggregationFailed.Wrap(assert.AnError), http.StatusInternalServerError, "AGGREGATION_FAILED"},
		{"plain error", assert.AnError, http.StatusInternalServerError, common.ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, common.ErrCodeGatewayTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(&fakeService{err: tc.err})
			w := call(r, http.MethodGet, "/shopping-lists/list-1", "")
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeError(t, w).Code)
		})
	}
}

func TestGetRoutes(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	w := call(r, http.MethodGet, "/shopping-lists/active", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", svc.listID, "active route must not be captured by :id")

	w = call(r, http.MethodGet, "/shopping-lists/list-9", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "list-9", svc.listID)

	w = call(r, http.MethodDelete, "/shopping-lists/list-9", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestApplyDecisions(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	w := call(r, http.MethodPost, "/shopping-lists/list-1/decisions", `{"decisions":[{"mergeId":"m1","decision":"merge"},{"mergeId":"m2","decision":"keep_separate"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "list-1", svc.listID)
	require.Len(t, svc.decisions, 2)
	assert.Equal(t, common.DecisionKeepSeparate, svc.decisions[1].Decision)

	w = call(r, http.MethodPost, "/shopping-lists/list-1/decisions", `{"decisions":[{"mergeId":"m1","decision":"maybe"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/shopping-lists/list-1/decisions", `{"decisions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchasePlan(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	w := call(r, http.MethodPost, "/shopping-lists/list-1/purchase-plan", `{"packageSizes":{"item-1":"16 oz"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]string{"item-1": "16 oz"}, svc.sizes)

	var resp PurchasePlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "list-1", resp.ListID)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, "salmon", resp.Lines[0].Name)

	w = call(r, http.MethodPost, "/shopping-lists/list-1/purchase-plan", `{"packageSizes":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
