package classifier

import (
	"context"
	"errors"
	"testing"

	"meal-planner/internal/core/ai/provider"
	"meal-planner/internal/core/similarity"
	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	content string
	err     error
	calls   int
	last    *provider.Request
}

func (p *fakeProvider) Generate(_ context.Context, req *provider.Request) (*provider.Response, error) {
	p.calls++
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Response{Content: p.content}, nil
}

func (p *fakeProvider) GetModel() string { return "test-model" }

func testPairs() []similarity.PairRequest {
	return []similarity.PairRequest{
		{Index: 0, NameA: "green onion", UnitA: "whole", NameB: "scallion", UnitB: "whole"},
		{Index: 1, NameA: "brown sugar", UnitA: "cup", NameB: "honey", UnitB: "tbsp"},
		{Index: 2, NameA: "salt", UnitA: "tsp", NameB: "salmon", UnitB: "oz"},
	}
}

func TestParseBatchResponse(t *testing.T) {
	t.Run("fenced response", func(t *testing.T) {
		content := "Here you go:\n```json\n" + `{"results":[
			{"index":0,"status":"same"},
			{"index":1,"status":"Similar","canonicalUnit":"Cups","conversionRatio1":1,"conversionRatio2":0.0625},
			{"index":2,"status":"different"}
		]}` + "\n```"
		results, err := ParseBatchResponse(content, testPairs())
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.True(t, results[0].Resolved)
		assert.Equal(t, common.StatusSame, results[0].Verdict.Status)

		assert.True(t, results[1].Resolved)
		assert.Equal(t, common.StatusSimilar, results[1].Verdict.Status)
		assert.Equal(t, "cup", results[1].Verdict.CanonicalUnit)
		require.NotNil(t, results[1].Verdict.RatioB)
		assert.Equal(t, 0.0625, *results[1].Verdict.RatioB)

		assert.True(t, results[2].Resolved)
		assert.Equal(t, common.StatusDifferent, results[2].Verdict.Status)
	})

	t.Run("missing and invalid entries stay unresolved", func(t *testing.T) {
		content := `[
			{"index":0,"status":"maybe"},
			{"index":1,"status":"similar","conversionRatio1":1,"conversionRatio2":2},
			{"index":7,"status":"same"}
		]`
		results, err := ParseBatchResponse(content, testPairs())
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, r := range results {
			assert.False(t, r.Resolved, "pair %d", i)
			assert.Equal(t, i, r.Index)
			assert.NotEmpty(t, r.Reason)
		}
	})

	t.Run("non-positive ratio", func(t *testing.T) {
		content := `[{"index":0,"status":"same","canonicalUnit":"cup","conversionRatio1":0,"conversionRatio2":1}]`
		results, err := ParseBatchResponse(content, testPairs()[:1])
		require.NoError(t, err)
		assert.False(t, results[0].Resolved)
	})

	t.Run("duplicate index", func(t *testing.T) {
		content := `[{"index":0,"status":"same"},{"index":0,"status":"different"}]`
		results, err := ParseBatchResponse(content, testPairs()[:1])
		require.NoError(t, err)
		assert.False(t, results[0].Resolved)
	})

	t.Run("unquoted keys", func(t *testing.T) {
		content := `[{index:0,status:"same"}]`
		results, err := ParseBatchResponse(content, testPairs()[:1])
		require.NoError(t, err)
		assert.True(t, results[0].Resolved)
	})

	t.Run("no array", func(t *testing.T) {
		_, err := ParseBatchResponse("I cannot help with that.", testPairs())
		assert.Error(t, err)
	})
}

func TestClassifyBatch(t *testing.T) {
	cfg := &config.ClassifierConfig{RequestsPerSecond: 0}

	t.Run("sends pairs and parses", func(t *testing.T) {
		p := &fakeProvider{content: `{"results":[{"index":0,"status":"same"}]}`}
		c := NewClassifier(p, cfg)

		results, err := c.ClassifyBatch(context.Background(), testPairs()[:1])
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Resolved)

		require.NotNil(t, p.last)
		assert.True(t, p.last.JSONMode)
		require.Len(t, p.last.Messages, 2)
		assert.Contains(t, p.last.Messages[1].Content, `"ingredient1":"green onion"`)
	})

	t.Run("provider error fails the batch", func(t *testing.T) {
		p := &fakeProvider{err: errors.New("upstream 503")}
		c := NewClassifier(p, cfg)

		_, err := c.ClassifyBatch(context.Background(), testPairs())
		assert.Error(t, err)
	})

	t.Run("empty batch skips the call", func(t *testing.T) {
		p := &fakeProvider{}
		c := NewClassifier(p, cfg)

		results, err := c.ClassifyBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, 0, p.calls)
	})

	t.Run("canceled context", func(t *testing.T) {
		p := &fakeProvider{content: `[]`}
		c := NewClassifier(p, &config.ClassifierConfig{RequestsPerSecond: 0.001, Burst: 1})
		_, err := c.ClassifyBatch(context.Background(), testPairs()[:1])
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = c.ClassifyBatch(ctx, testPairs()[:1])
		assert.Error(t, err)
	})
}
