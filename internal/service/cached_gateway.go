package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

type draftCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachingGateway memoises successful GenerateContent results. Grading always reaches the
// wrapped gateway because every submission is different.
type CachingGateway struct {
	next   ContentGateway
	cache  draftCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachingGateway wraps next with a generation cache.
func NewCachingGateway(next ContentGateway, cache draftCache, ttl time.Duration, logger *zap.Logger) *CachingGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingGateway{next: next, cache: cache, ttl: ttl, logger: logger}
}

// GenerationCacheKey derives a stable key from the normalised request.
func GenerationCacheKey(brief string, kind models.GenerationKind, opts models.GenerationOptions) string {
	payload, _ := json.Marshal(struct {
		Brief string                   `json:"brief"`
		Kind  models.GenerationKind    `json:"kind"`
		Opts  models.GenerationOptions `json:"opts"`
	}{brief, kind, opts})
	sum := sha256.Sum256(payload)
	return "generation:" + hex.EncodeToString(sum[:])
}

// GenerateContent implements ContentGateway.
func (g *CachingGateway) GenerateContent(ctx context.Context, brief string, kind models.GenerationKind, opts models.GenerationOptions) (*models.Draft, error) {
	normBrief, normOpts, err := normalizeGenerationRequest(brief, kind, opts)
	if err != nil {
		return nil, err
	}
	key := GenerationCacheKey(normBrief, kind, normOpts)

	var cached models.Draft
	hit, err := g.cache.Get(ctx, key, &cached)
	if err != nil {
		g.logger.Warn("generation cache unavailable", zap.Error(err))
	}
	if hit {
		return freshIDs(&cached), nil
	}

	draft, err := g.next.GenerateContent(ctx, brief, kind, opts)
	if err != nil {
		return nil, err
	}
	if err := g.cache.Set(ctx, key, draft, g.ttl); err != nil {
		g.logger.Warn("generation cache write failed", zap.Error(err))
	}
	return draft, nil
}

// GradeSubmission implements ContentGateway.
func (g *CachingGateway) GradeSubmission(ctx context.Context, activity *models.Activity, submission *models.Submission) (*models.GradeProposal, error) {
	return g.next.GradeSubmission(ctx, activity, submission)
}

// freshIDs gives cached questions new ids so two drafts never share question identities.
func freshIDs(d *models.Draft) *models.Draft {
	for i := range d.Questions {
		d.Questions[i].ID = uuid.NewString()
	}
	if d.Activity != nil {
		for i := range d.Activity.Questions {
			d.Activity.Questions[i].ID = uuid.NewString()
		}
	}
	return d
}

// InstrumentedGateway records latency and outcome of every gateway call.
type InstrumentedGateway struct {
	next    ContentGateway
	metrics *MetricsService
	logger  *zap.Logger
}

// NewInstrumentedGateway wraps next with metrics and logging.
func NewInstrumentedGateway(next ContentGateway, metrics *MetricsService, logger *zap.Logger) *InstrumentedGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedGateway{next: next, metrics: metrics, logger: logger}
}

// GenerateContent implements ContentGateway.
func (g *InstrumentedGateway) GenerateContent(ctx context.Context, brief string, kind models.GenerationKind, opts models.GenerationOptions) (*models.Draft, error) {
	start := time.Now()
	draft, err := g.next.GenerateContent(ctx, brief, kind, opts)
	g.observe("generate_"+string(kind), start, err)
	return draft, err
}

// GradeSubmission implements ContentGateway.
func (g *InstrumentedGateway) GradeSubmission(ctx context.Context, activity *models.Activity, submission *models.Submission) (*models.GradeProposal, error) {
	start := time.Now()
	proposal, err := g.next.GradeSubmission(ctx, activity, submission)
	g.observe("grade", start, err)
	return proposal, err
}

func (g *InstrumentedGateway) observe(operation string, start time.Time, err error) {
	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, appErrors.ErrValidation):
		outcome = OutcomeInvalid
	default:
		outcome = OutcomeFailure
		g.logger.Warn("gateway call failed", zap.String("operation", operation), zap.Error(err))
	}
	g.metrics.ObserveGatewayCall(operation, outcome, time.Since(start))
}
