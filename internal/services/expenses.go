package services

import (
	"context"
	"log/slog"

	"splitbudget/internal/core"
	applog "splitbudget/internal/log"
)

// ExpenseService owns the write path. Persisting is the transaction;
// the change event is best effort and a publish failure never fails
// the write.
type ExpenseService struct {
	writer    ExpenseWriter
	publisher EventPublisher
	logger    *slog.Logger
}

func NewExpenseService(writer ExpenseWriter, publisher EventPublisher, logger *slog.Logger) *ExpenseService {
	return &ExpenseService{
		writer:    writer,
		publisher: publisher,
		logger:    logger.With(applog.FieldComponent, applog.ComponentDashboard),
	}
}

func (s *ExpenseService) CreateExpense(ctx context.Context, groupID string, e core.Expense) (string, error) {
	id, err := s.writer.SaveExpense(ctx, groupID, e)
	if err != nil {
		return "", err
	}
	s.logger.Info("expense recorded",
		applog.FieldOperation, applog.OpCreate,
		applog.FieldGroupID, groupID,
		applog.FieldExpenseID, id)

	if s.publisher != nil {
		go func() {
			if err := s.publisher.PublishExpenseChanged(context.WithoutCancel(ctx), groupID, id); err != nil {
				s.logger.Warn("change event publish failed",
					applog.FieldExpenseID, id, applog.FieldError, err)
			}
		}()
	}
	return id, nil
}
