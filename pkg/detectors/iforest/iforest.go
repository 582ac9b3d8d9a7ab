// Package iforest scores records locally with an isolation forest trained by
// the remote platform.
package iforest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/anomalyscore/pkg/cache"
	"github.com/hed1ad/anomalyscore/pkg/detectors"
	"github.com/hed1ad/anomalyscore/pkg/fields"
	"github.com/hed1ad/anomalyscore/pkg/metrics"
	"github.com/hed1ad/anomalyscore/pkg/resource"
)

const eulerMascheroni = 0.5772156649

// IsolationForest is an anomaly scorer reconstructed from a trained
// detector. It is immutable once built and safe for concurrent use.
type IsolationForest struct {
	// Configuration
	threshold float64
	cache     cache.Getter
	logger    *zap.Logger
	metrics   *metrics.Collector

	// Reconstructed model
	id                  string
	sampleSize          int
	meanDepth           float64
	nodesMeanDepth      float64
	normalizationFactor float64
	explicitFactor      bool
	inputFields         []string
	idFields            []string
	fields              *fields.Fields
	forest              *forest
	topAnomalies        []topAnomaly
}

type topAnomaly struct {
	Row   []operand
	Score float64
}

// TopAnomaly is one of the most anomalous rows of the training dataset.
type TopAnomaly struct {
	Row   []any
	Score float64
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithThreshold sets the score from which records are flagged as anomalous.
func WithThreshold(t float64) Option {
	return func(f *IsolationForest) {
		f.threshold = t
	}
}

// WithCache sets the cache consulted by Open before building from the
// resource. When it also implements cache.Store, freshly built scorers are
// written back.
func WithCache(c cache.Getter) Option {
	return func(f *IsolationForest) {
		f.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *IsolationForest) {
		f.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(f *IsolationForest) {
		f.metrics = m
	}
}

func newWithOptions(opts []Option) *IsolationForest {
	f := &IsolationForest{
		threshold: detectors.DefaultConfig().Threshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New reconstructs a scorer from a resource document.
func New(doc *resource.Document, opts ...Option) (*IsolationForest, error) {
	start := time.Now()
	f := newWithOptions(opts)
	if err := f.build(doc); err != nil {
		return nil, err
	}
	f.metrics.ObserveBuild(metrics.SourceResource, time.Since(start))
	f.logger.Debug("built anomaly scorer",
		zap.String("id", f.id),
		zap.Int("trees", len(f.forest.Roots)),
		zap.Int("nodes", len(f.forest.Nodes)),
		zap.Float64("normalization_factor", f.normalizationFactor))
	return f, nil
}

// Open builds a scorer from source, a resource id, a local file path or a raw
// JSON document. Ids are looked up in the configured cache first.
func Open(ctx context.Context, source string, fetcher resource.Fetcher, opts ...Option) (*IsolationForest, error) {
	cfg := newWithOptions(opts)
	id := strings.TrimSpace(source)

	if cfg.cache != nil && resource.IsID(id) {
		blob, ok, err := cfg.cache.Get(ctx, id)
		switch {
		case err != nil:
			cfg.metrics.CacheLookup(metrics.CacheError)
			cfg.logger.Warn("scorer cache lookup failed", zap.String("id", id), zap.Error(err))
		case ok:
			cfg.metrics.CacheLookup(metrics.CacheHit)
			f, err := Load(blob, opts...)
			switch {
			case err != nil:
				cfg.logger.Warn("discarding cached scorer", zap.String("id", id), zap.Error(err))
			case f.ID() != id:
				cfg.logger.Warn("discarding cached scorer",
					zap.String("id", id), zap.String("cached_id", f.ID()))
			default:
				return f, nil
			}
		default:
			cfg.metrics.CacheLookup(metrics.CacheMiss)
		}
	}

	doc, err := resource.Load(ctx, fetcher, source)
	if err != nil {
		return nil, err
	}
	f, err := New(doc, opts...)
	if err != nil {
		return nil, err
	}

	if store, ok := cfg.cache.(cache.Store); ok && f.id != "" {
		blob, err := f.Save()
		if err == nil {
			err = store.Put(ctx, f.id, blob)
		}
		if err != nil {
			f.logger.Warn("storing scorer in cache failed", zap.String("id", f.id), zap.Error(err))
		}
	}
	return f, nil
}

func (f *IsolationForest) build(doc *resource.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: no document", ErrModelIncomplete)
	}
	obj := doc.Object
	f.id = doc.Resource
	if obj.Status.Code != resource.StatusFinished {
		return fmt.Errorf("%w: %s has status %d", ErrModelNotReady, doc.Resource, obj.Status.Code)
	}
	if obj.SampleSize == nil || obj.Model == nil || obj.Model.MeanDepth == nil {
		return fmt.Errorf("%w: %s lacks sample_size or mean_depth", ErrModelIncomplete, doc.Resource)
	}
	if *obj.SampleSize < 1 {
		return fmt.Errorf("%w: sample_size %d", ErrModelIncomplete, *obj.SampleSize)
	}

	model := obj.Model
	for id, field := range model.Fields {
		if field == nil {
			return fmt.Errorf("%w: %s has no definition for field %s", ErrModelIncomplete, doc.Resource, id)
		}
	}
	f.sampleSize = *obj.SampleSize
	f.meanDepth = *model.MeanDepth
	if model.NodesMeanDepth != nil {
		f.nodesMeanDepth = *model.NodesMeanDepth
	}
	if model.NormalizationFactor != nil {
		f.normalizationFactor = *model.NormalizationFactor
		f.explicitFactor = true
	} else {
		f.normalizationFactor = normalizationFactor(f.sampleSize, f.meanDepth)
	}
	if !f.degenerate() && !(f.normalizationFactor > 0) {
		return fmt.Errorf("%w: normalization factor %v", ErrModelIncomplete, f.normalizationFactor)
	}

	f.inputFields = append([]string(nil), obj.InputFields...)
	f.idFields = append([]string(nil), obj.IDFields...)
	f.fields = fields.New(model.Fields, scoringFields(f.inputFields, f.idFields), model.MissingTokens)

	for _, a := range model.TopAnomalies {
		row, err := toOperand(a.Row)
		if err != nil {
			return fmt.Errorf("%w: top anomaly row: %v", ErrModelIncomplete, err)
		}
		f.topAnomalies = append(f.topAnomalies, topAnomaly{Row: row.List, Score: a.Score})
	}

	if len(model.Trees) == 0 {
		return fmt.Errorf("%w: %s has no trees", ErrForestUnavailable, doc.Resource)
	}
	forest, err := compactForest(model.Trees)
	if err != nil {
		return err
	}
	if err := forest.prepare(f.fields); err != nil {
		return err
	}
	f.forest = forest
	return nil
}

// scoringFields returns the input fields that are not id fields. An empty
// result lets the schema accept every field.
func scoringFields(inputFields, idFields []string) []string {
	ids := make(map[string]bool, len(idFields))
	for _, id := range idFields {
		ids[id] = true
	}
	out := make([]string, 0, len(inputFields))
	for _, id := range inputFields {
		if !ids[id] {
			out = append(out, id)
		}
	}
	return out
}

// normalizationFactor returns the expected depth used to scale observed
// depths: the average unsuccessful search path length of a binary search tree
// of sampleSize elements, bounded by the forest mean depth.
func normalizationFactor(sampleSize int, meanDepth float64) float64 {
	if sampleSize == 1 {
		return meanDepth
	}
	n := float64(sampleSize)
	defaultDepth := 2 * (eulerMascheroni + math.Log(n-1) - (n-1)/n)
	return math.Min(meanDepth, defaultDepth)
}

// degenerate reports a single record training set without an explicit
// normalization factor, for which every score is 1.
func (f *IsolationForest) degenerate() bool {
	return f.sampleSize == 1 && !f.explicitFactor
}

// Score returns the anomaly score of input, in (0, 1].
func (f *IsolationForest) Score(input detectors.Record) (float64, error) {
	if f.degenerate() {
		return 1, nil
	}
	if f.forest == nil || len(f.forest.Roots) == 0 {
		return 0, ErrForestUnavailable
	}
	filtered, err := f.fields.Filter(input)
	if err != nil {
		f.metrics.ScoreFailed()
		return 0, err
	}

	var total float64
	for t := range f.forest.Roots {
		total += f.forest.treeDepth(t, filtered, f.fields)
	}
	observed := total / float64(len(f.forest.Roots))
	score := math.Pow(2, -observed/f.normalizationFactor)

	f.metrics.ObserveScore(score, score >= f.threshold)
	return score, nil
}

// ScoreMany returns the anomaly scores of inputs.
func (f *IsolationForest) ScoreMany(inputs []detectors.Record) ([]float64, error) {
	scores := make([]float64, len(inputs))
	for i, input := range inputs {
		score, err := f.Score(input)
		if err != nil {
			return nil, fmt.Errorf("scoring record %d: %w", i, err)
		}
		scores[i] = score
	}
	return scores, nil
}

// ScoreStream processes records from a channel until it is closed or ctx is
// done. Records that cannot be scored are sent with Err set.
func (f *IsolationForest) ScoreStream(ctx context.Context, input <-chan detectors.Record, output chan<- detectors.Score) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-input:
			if !ok {
				return nil
			}

			score := detectors.Score{Input: record}
			value, err := f.Score(record)
			if err != nil {
				score.Err = err
			} else {
				score.Value = value
				score.IsAnomaly = value >= f.threshold
			}

			select {
			case output <- score:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ID returns the resource id of the detector.
func (f *IsolationForest) ID() string {
	return f.id
}

// Threshold returns the anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	return f.threshold
}

// NormalizationFactor returns the factor observed depths are scaled by.
func (f *IsolationForest) NormalizationFactor() float64 {
	return f.normalizationFactor
}

// MeanDepth returns the mean depth of the trained forest.
func (f *IsolationForest) MeanDepth() float64 {
	return f.meanDepth
}

// SampleSize returns the number of rows each tree was trained on.
func (f *IsolationForest) SampleSize() int {
	return f.sampleSize
}

// Fields returns the field schema used to cast input records.
func (f *IsolationForest) Fields() *fields.Fields {
	return f.fields
}

// TopAnomalies returns the most anomalous rows of the training dataset.
func (f *IsolationForest) TopAnomalies() []TopAnomaly {
	out := make([]TopAnomaly, len(f.topAnomalies))
	for i, a := range f.topAnomalies {
		row := make([]any, len(a.Row))
		for j, cell := range a.Row {
			row[j] = cell.value()
		}
		out[i] = TopAnomaly{Row: row, Score: a.Score}
	}
	return out
}

var _ detectors.StreamScorer = (*IsolationForest)(nil)
