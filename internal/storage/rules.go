package storage

import (
	"database/sql"
	"fmt"
	"time"

	opErrors "github.com/Rixmerz/opcode/internal/errors"
)

// BusinessRuleRepository owns the business_rules table.
type BusinessRuleRepository struct {
	db *DB
}

// NewBusinessRuleRepository creates a business rule repository.
func NewBusinessRuleRepository(db *DB) *BusinessRuleRepository {
	return &BusinessRuleRepository{db: db}
}

const ruleColumns = `id, project_path, entity_name, file_path, rule_description,
	ai_interpretation, user_correction, is_validated, validation_date, created_at, updated_at`

// Create inserts a new unvalidated rule proposal. Proposals are never
// deduplicated; callers poll pending rules before re-proposing.
func (r *BusinessRuleRepository) Create(rule *BusinessRule) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.Exec(`
		INSERT INTO business_rules (project_path, entity_name, file_path, rule_description,
			ai_interpretation, user_correction, is_validated, validation_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)
	`,
		rule.ProjectPath,
		rule.EntityName,
		rule.FilePath,
		rule.RuleDescription,
		rule.AiInterpretation,
		rule.UserCorrection,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create business rule: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get rule id: %w", err)
	}
	rule.ID = id
	return id, nil
}

// GetByID retrieves a rule by id, or nil if it does not exist.
func (r *BusinessRuleRepository) GetByID(id int64) (*BusinessRule, error) {
	row := r.db.QueryRow("SELECT "+ruleColumns+" FROM business_rules WHERE id = ?", id)
	rule, err := scanBusinessRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business rule: %w", err)
	}
	return rule, nil
}

// ListPending returns the unvalidated rules of a project, oldest first.
func (r *BusinessRuleRepository) ListPending(projectPath string) ([]*BusinessRule, error) {
	return r.list(projectPath, "AND is_validated = 0")
}

// ListValidated returns the validated rules of a project, oldest first.
func (r *BusinessRuleRepository) ListValidated(projectPath string) ([]*BusinessRule, error) {
	return r.list(projectPath, "AND is_validated = 1")
}

func (r *BusinessRuleRepository) list(projectPath, cond string) ([]*BusinessRule, error) {
	rows, err := r.db.Query(
		"SELECT "+ruleColumns+" FROM business_rules WHERE project_path = ? "+cond+" ORDER BY created_at, id",
		projectPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list business rules: %w", err)
	}
	defer rows.Close()

	var rules []*BusinessRule
	for rows.Next() {
		rule, err := scanBusinessRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating business rules: %w", err)
	}
	return rules, nil
}

// Validate marks a rule as validated, fixing its description and optionally
// recording the user's correction. Validation is one-way: a second call fails
// with ALREADY_VALIDATED, a missing id with NOT_FOUND.
func (r *BusinessRuleRepository) Validate(id int64, description string, correction *string) error {
	return r.db.WithTx(func(tx *sql.Tx) error {
		var validated bool
		err := tx.QueryRow("SELECT is_validated FROM business_rules WHERE id = ?", id).Scan(&validated)
		if err == sql.ErrNoRows {
			return opErrors.New(opErrors.NotFound,
				fmt.Sprintf("business rule %d does not exist", id), nil)
		}
		if err != nil {
			return fmt.Errorf("failed to check business rule: %w", err)
		}
		if validated {
			return opErrors.New(opErrors.AlreadyValidated,
				fmt.Sprintf("business rule %d is already validated", id), nil)
		}

		now := time.Now().UTC().Format(time.RFC3339)
		_, err = tx.Exec(`
			UPDATE business_rules
			SET rule_description = ?, user_correction = ?, is_validated = 1,
			    validation_date = ?, updated_at = ?
			WHERE id = ?
		`, description, correction, now, now, id)
		if err != nil {
			return fmt.Errorf("failed to validate business rule: %w", err)
		}
		return nil
	})
}

func scanBusinessRule(row rowScanner) (*BusinessRule, error) {
	var rule BusinessRule
	var validationDate *string
	var createdAt, updatedAt string

	err := row.Scan(
		&rule.ID,
		&rule.ProjectPath,
		&rule.EntityName,
		&rule.FilePath,
		&rule.RuleDescription,
		&rule.AiInterpretation,
		&rule.UserCorrection,
		&rule.IsValidated,
		&validationDate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if validationDate != nil {
		t := parseTimestamp(*validationDate)
		rule.ValidationDate = &t
	}
	rule.CreatedAt = parseTimestamp(createdAt)
	rule.UpdatedAt = parseTimestamp(updatedAt)
	return &rule, nil
}
