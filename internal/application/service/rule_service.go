package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/rule"
)

// RuleEngine looks up and learns per-user store-to-account rules
type RuleEngine interface {
	// Lookup returns the rule for the normalized store name, or nil when none exists
	Lookup(ctx context.Context, userID, storeName string) (*entity.Rule, error)

	// RecordHit atomically increments the rule's hit count and stamps last_used_at
	RecordHit(ctx context.Context, r *entity.Rule) error

	// Learn creates or overwrites the rule for storeName
	Learn(ctx context.Context, userID, storeName, debitAccount string, taxCategory *string) (*entity.Rule, error)

	ListRules(ctx context.Context, userID string) ([]*entity.Rule, error)
	DeleteRule(ctx context.Context, userID, id string) error
}

type ruleEngineImpl struct {
	rules  port.RuleRepository
	logger Logger
	now    func() time.Time
}

// NewRuleEngine creates a new RuleEngine
func NewRuleEngine(rules port.RuleRepository, logger Logger) RuleEngine {
	return &ruleEngineImpl{
		rules:  rules,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *ruleEngineImpl) Lookup(ctx context.Context, userID, storeName string) (*entity.Rule, error) {
	key := rule.NormalizeStoreName(storeName)
	if key == "" || storeName == entity.UnknownStore {
		return nil, nil
	}

	r, err := s.rules.GetByKey(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("lookup rule: %w", err)
	}
	return r, nil
}

func (s *ruleEngineImpl) RecordHit(ctx context.Context, r *entity.Rule) error {
	usedAt := s.now()
	if err := s.rules.IncrementHit(ctx, r.ID, usedAt); err != nil {
		s.logger.Error("Failed to record rule hit", "error", err, "rule_id", r.ID)
		return err
	}
	return nil
}

func (s *ruleEngineImpl) Learn(ctx context.Context, userID, storeName, debitAccount string, taxCategory *string) (*entity.Rule, error) {
	key := rule.NormalizeStoreName(storeName)
	if key == "" || storeName == entity.UnknownStore {
		return nil, entity.NewValidationError("INVALID_STORE_NAME", "store name is required to learn a rule")
	}
	if !entity.IsAccountCategory(debitAccount) {
		return nil, entity.NewValidationError("INVALID_DEBIT_ACCOUNT", fmt.Sprintf("unknown debit account %q", debitAccount))
	}
	if taxCategory != nil && strings.TrimSpace(*taxCategory) == "" {
		taxCategory = nil
	}

	r := &entity.Rule{
		UserID:       userID,
		StoreNameKey: key,
		DebitAccount: debitAccount,
		TaxCategory:  taxCategory,
	}
	if err := s.rules.Upsert(ctx, r); err != nil {
		s.logger.Error("Failed to learn rule", "error", err, "user_id", userID, "store_name_key", key)
		return nil, err
	}

	s.logger.Info("Rule learned", "rule_id", r.ID, "store_name_key", key, "debit_account", debitAccount)
	return r, nil
}

func (s *ruleEngineImpl) ListRules(ctx context.Context, userID string) ([]*entity.Rule, error) {
	return s.rules.List(ctx, userID)
}

func (s *ruleEngineImpl) DeleteRule(ctx context.Context, userID, id string) error {
	r, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return entity.ErrNotFound
	}
	if r.UserID != userID {
		return entity.ErrForbidden
	}

	if err := s.rules.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete rule", "error", err, "rule_id", id)
		return err
	}
	return nil
}
