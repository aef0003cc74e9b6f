package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCacheRepo) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

type countingGateway struct {
	mu          sync.Mutex
	generations int
	gradings    int
	genErr      error
}

func (g *countingGateway) GenerateContent(ctx context.Context, brief string, kind models.GenerationKind, opts models.GenerationOptions) (*models.Draft, error) {
	g.mu.Lock()
	g.generations++
	g.mu.Unlock()
	if g.genErr != nil {
		return nil, g.genErr
	}
	return &models.Draft{Kind: kind, Questions: models.Questions{{ID: "q1", Type: models.QuestionEssay, Prompt: brief, Points: 1, Difficulty: models.DifficultyEasy}}}, nil
}

func (g *countingGateway) GradeSubmission(context.Context, *models.Activity, *models.Submission) (*models.GradeProposal, error) {
	g.mu.Lock()
	g.gradings++
	g.mu.Unlock()
	return &models.GradeProposal{Grade: 5, Confidence: 90}, nil
}

func questionOpts() models.GenerationOptions {
	return models.GenerationOptions{QuestionTypes: []models.QuestionType{models.QuestionEssay}, Count: 1}
}

func TestCachingGatewayServesRepeatedBriefFromCache(t *testing.T) {
	inner := &countingGateway{}
	cache := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), time.Minute, nil, true)
	gw := NewCachingGateway(inner, cache, time.Minute, nil)

	first, err := gw.GenerateContent(context.Background(), "frações", models.GenerateQuestions, questionOpts())
	require.NoError(t, err)
	second, err := gw.GenerateContent(context.Background(), "  frações ", models.GenerateQuestions, questionOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, inner.generations)
	assert.Equal(t, first.Questions[0].Prompt, second.Questions[0].Prompt)
	assert.NotEqual(t, first.Questions[0].ID, second.Questions[0].ID)
	assert.Equal(t, uint64(1), cache.metrics.Snapshot().CacheHits)
}

func TestCachingGatewayDoesNotCacheFailuresOrGrading(t *testing.T) {
	inner := &countingGateway{genErr: appErrors.Clone(appErrors.ErrGenerationFailure, "down")}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	gw := NewCachingGateway(inner, cache, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := gw.GenerateContent(context.Background(), "frações", models.GenerateQuestions, questionOpts())
		assert.True(t, errors.Is(err, appErrors.ErrGenerationFailure))
	}
	assert.Equal(t, 2, inner.generations)

	for i := 0; i < 2; i++ {
		_, err := gw.GradeSubmission(context.Background(), &models.Activity{}, &models.Submission{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.gradings)
}

func TestCachingGatewayDisabledCachePassesThrough(t *testing.T) {
	inner := &countingGateway{}
	gw := NewCachingGateway(inner, NewCacheService(nil, nil, 0, nil, false), time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := gw.GenerateContent(context.Background(), "frações", models.GenerateQuestions, questionOpts())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.generations)
}

func TestGenerationCacheKeyIsStable(t *testing.T) {
	a := GenerationCacheKey("x", models.GenerateActivity, models.GenerationOptions{Count: 3})
	b := GenerationCacheKey("x", models.GenerateActivity, models.GenerationOptions{Count: 3})
	c := GenerationCacheKey("x", models.GenerateActivity, models.GenerationOptions{Count: 4})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
