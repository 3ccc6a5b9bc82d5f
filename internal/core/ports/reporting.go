package ports

import (
	"context"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
)

type Reporter interface {
	ReportPlan(ctx context.Context, plan domain.Plan) error
	ReportApply(ctx context.Context, result domain.ApplyResult) error
}
