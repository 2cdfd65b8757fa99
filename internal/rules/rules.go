// Package rules implements the business rule validation workflow: the
// chunker proposes interpretations of domain logic it finds, a human either
// confirms them or leaves them pending. Only validated rules feed back into
// the chunk graph.
package rules

import (
	"fmt"
	"log/slog"
	"strings"

	opErrors "github.com/Rixmerz/opcode/internal/errors"
	"github.com/Rixmerz/opcode/internal/storage"
)

// Proposal is a candidate rule awaiting human review. It carries only the
// machine's reading of the code; the authoritative description is written by
// the human at validation time.
type Proposal struct {
	ProjectPath      string `json:"projectPath"`
	EntityName       string `json:"entityName"`
	FilePath         string `json:"filePath"`
	AiInterpretation string `json:"aiInterpretation"`
}

// Service drives the propose/validate lifecycle.
type Service struct {
	repo   *storage.BusinessRuleRepository
	logger *slog.Logger
}

// NewService creates a rule workflow service.
func NewService(repo *storage.BusinessRuleRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Propose records a new unvalidated rule and returns it. Proposals never
// merge; a repeated observation is a fresh row for the reviewer to judge.
func (s *Service) Propose(p Proposal) (*storage.BusinessRule, error) {
	if strings.TrimSpace(p.ProjectPath) == "" {
		return nil, opErrors.New(opErrors.InvalidInput, "project path is required", nil)
	}
	if strings.TrimSpace(p.AiInterpretation) == "" {
		return nil, opErrors.New(opErrors.InvalidInput, "ai interpretation is required", nil)
	}

	// The description stays empty until a human validates the rule.
	rule := &storage.BusinessRule{
		ProjectPath:      p.ProjectPath,
		EntityName:       p.EntityName,
		FilePath:         p.FilePath,
		AiInterpretation: p.AiInterpretation,
	}
	id, err := s.repo.Create(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to propose rule: %w", err)
	}

	s.logger.Info("Business rule proposed",
		"rule_id", id,
		"project", p.ProjectPath,
		"entity", p.EntityName,
	)

	got, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	return got, nil
}

// Pending lists a project's rules still awaiting review, oldest first.
func (s *Service) Pending(projectPath string) ([]*storage.BusinessRule, error) {
	return s.repo.ListPending(projectPath)
}

// Validated lists a project's confirmed rules, oldest first.
func (s *Service) Validated(projectPath string) ([]*storage.BusinessRule, error) {
	return s.repo.ListValidated(projectPath)
}

// Validate confirms a pending rule with its final description and an optional
// correction of the machine interpretation. A rule can only be validated
// once; anything not validated simply stays pending.
func (s *Service) Validate(id int64, description string, correction *string) (*storage.BusinessRule, error) {
	if err := s.repo.Validate(id, description, correction); err != nil {
		return nil, err
	}

	s.logger.Info("Business rule validated", "rule_id", id)

	return s.repo.GetByID(id)
}
