package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ruleColumns = `
	id, user_id, store_name_key, debit_account, tax_category,
	hit_count, last_used_at, created_at, updated_at`

// RuleRepository implements port.RuleRepository
type RuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB, logger *zap.Logger) *RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

// GetByKey returns the user's rule for a normalized store name, or nil
func (r *RuleRepository) GetByKey(ctx context.Context, userID, storeNameKey string) (*entity.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE user_id = ? AND store_name_key = ?`

	rule, err := scanRule(r.getExecutor(ctx).QueryRowContext(ctx, query, userID, storeNameKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get rule by key",
			zap.String("user_id", userID),
			zap.String("store_name_key", storeNameKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// GetByID returns the rule or nil
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*entity.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`

	rule, err := scanRule(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get rule by ID",
			zap.String("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// IncrementHit bumps hit_count in place so concurrent jobs never lose a hit
func (r *RuleRepository) IncrementHit(ctx context.Context, id string, usedAt time.Time) error {
	query := `
		UPDATE rules
		SET hit_count = hit_count + 1, last_used_at = ?, updated_at = ?
		WHERE id = ?
	`

	usedAt = usedAt.UTC()
	result, err := r.getExecutor(ctx).ExecContext(ctx, query, usedAt, usedAt, id)
	if err != nil {
		r.logger.Error("Failed to increment rule hit",
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to increment rule hit: %w", err)
	}
	if ok, err := affected(result); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("rule %s: %w", id, entity.ErrNotFound)
	}

	return nil
}

// Upsert creates the (user, key) rule or overwrites its account and tax category.
// hit_count and created_at of an existing row are preserved; last_used_at is
// set to now either way.
func (r *RuleRepository) Upsert(ctx context.Context, rule *entity.Rule) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO rules (id, user_id, store_name_key, debit_account, tax_category,
			hit_count, last_used_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (user_id, store_name_key) DO UPDATE SET
			debit_account = excluded.debit_account,
			tax_category = excluded.tax_category,
			last_used_at = excluded.last_used_at,
			updated_at = excluded.updated_at
	`

	exec := r.getExecutor(ctx)
	_, err := exec.ExecContext(ctx, query,
		uuid.NewString(),
		rule.UserID,
		rule.StoreNameKey,
		rule.DebitAccount,
		nullString(rule.TaxCategory),
		now,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to upsert rule",
			zap.String("user_id", rule.UserID),
			zap.String("store_name_key", rule.StoreNameKey),
			zap.Error(err))
		return fmt.Errorf("failed to upsert rule: %w", err)
	}

	stored, err := scanRule(exec.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE user_id = ? AND store_name_key = ?`,
		rule.UserID, rule.StoreNameKey))
	if err != nil {
		return fmt.Errorf("failed to read upserted rule: %w", err)
	}
	*rule = *stored

	return nil
}

// List returns the user's rules, most used first
func (r *RuleRepository) List(ctx context.Context, userID string) ([]*entity.Rule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM rules
		WHERE user_id = ?
		ORDER BY hit_count DESC, updated_at DESC`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list rules",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Delete removes a rule
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.getExecutor(ctx).ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete rule",
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if ok, err := affected(result); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("rule %s: %w", id, entity.ErrNotFound)
	}
	return nil
}

func (r *RuleRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

func scanRule(row rowScanner) (*entity.Rule, error) {
	var rule entity.Rule
	var taxCategory sql.NullString
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.StoreNameKey,
		&rule.DebitAccount,
		&taxCategory,
		&rule.HitCount,
		&lastUsedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.TaxCategory = stringPtr(taxCategory)
	if lastUsedAt.Valid {
		rule.LastUsedAt = &lastUsedAt.Time
	}

	return &rule, nil
}

// Verify interface compliance
var _ port.RuleRepository = (*RuleRepository)(nil)
