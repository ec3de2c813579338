package narrative

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/metrics"
)

// Annotator explains every scored entry of a batch with bounded concurrency
type Annotator struct {
	explainer   Explainer
	concurrency int
	metrics     *metrics.Metrics
}

// NewAnnotator wraps an explainer. Concurrency below 1 means one at a time.
func NewAnnotator(explainer Explainer, concurrency int, m *metrics.Metrics) *Annotator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Annotator{explainer: explainer, concurrency: concurrency, metrics: m}
}

// Annotate sets Narrative on each scored entry in place. Failed entries are
// skipped. Only the Narrative field is written.
func (a *Annotator) Annotate(ctx context.Context, result *domain.BatchResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i := range result.Entries {
		if result.Entries[i].Assessment == nil {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			entry := &result.Entries[i]
			n, err := a.explainer.Explain(gctx, entry)
			if err != nil {
				return err
			}
			entry.Narrative = n
			a.metrics.IncrementNarrative(n.Source)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
