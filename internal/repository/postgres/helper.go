package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/getsentry/sentry-go"
)

// StartRepositorySpan creates a new span for a repository operation
// Returns nil if Sentry is not available in the context
func StartRepositorySpan(ctx context.Context, repository, operation string, params map[string]interface{}) *sentry.Span {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		return nil
	}

	span := sentry.StartSpan(ctx, "repository."+repository+"."+operation)
	if span != nil {
		span.Description = "repository." + repository + "." + operation
		span.Op = "db.postgres"
		span.SetData("repository", repository)
		span.SetData("operation", operation)
		for k, v := range params {
			span.SetData(k, v)
		}
	}

	return span
}

// FinishSpan safely finishes a span, handling nil spans
func FinishSpan(span *sentry.Span) {
	if span != nil {
		span.Finish()
	}
}

// SetSpanError marks a span as failed and adds error information
func SetSpanError(span *sentry.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.Status = sentry.SpanStatusInternalError
	span.SetData("error", err.Error())
}

// resolveScope returns the tenant filter of ctx. Access without a tenant is
// allowed but always logged with the caller that asked for it.
func resolveScope(ctx context.Context, log *logger.Logger, repository, operation string) types.TenantScope {
	scope := types.ResolveTenantScope(ctx)
	if scope.Unscoped() {
		log.Warnw("unscoped repository access",
			"repository", repository,
			"operation", operation,
			"caller", scope.Caller,
		)
	}
	return scope
}

// whereBuilder accumulates AND-ed conditions with positional arguments
type whereBuilder struct {
	conds []string
	args  []interface{}
}

// add appends a condition; each "?" in cond is bound to the next arg
func (w *whereBuilder) add(cond string, args ...interface{}) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

// tenant adds the tenant filter unless the scope is unscoped
func (w *whereBuilder) tenant(scope types.TenantScope) {
	if !scope.Unscoped() {
		w.add("tenant_id = ?", scope.TenantID)
	}
}

func (w *whereBuilder) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	marks := make([]string, len(values))
	for i, v := range values {
		w.args = append(w.args, v)
		marks[i] = fmt.Sprintf("$%d", len(w.args))
	}
	w.conds = append(w.conds, column+" IN ("+strings.Join(marks, ", ")+")")
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page renders ORDER BY and pagination for a list query
func (w *whereBuilder) page(filter types.BaseFilter) string {
	order := "DESC"
	if filter.GetOrder() == types.OrderAsc {
		order = "ASC"
	}
	clause := " ORDER BY created_at " + order + ", id " + order
	if !filter.IsUnlimited() {
		w.args = append(w.args, filter.GetLimit())
		clause += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	if filter.GetOffset() > 0 {
		w.args = append(w.args, filter.GetOffset())
		clause += fmt.Sprintf(" OFFSET $%d", len(w.args))
	}
	return clause
}
