package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
)

const storeName = "postgres"

// metricsTracer implements pgx.QueryTracer and reports to StoreMetrics.
type metricsTracer struct {
	metrics *metrics.StoreMetrics
}

var _ pgx.QueryTracer = (*metricsTracer)(nil)

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	operation string
}

func (t *metricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: time.Now(),
		operation: operationName(data.SQL),
	})
}

func (t *metricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}
	t.metrics.Observe(storeName, qctx.operation, time.Since(qctx.startTime).Seconds(), data.Err)
}

// operationName reduces a statement to its leading keyword to keep label cardinality low.
func operationName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
