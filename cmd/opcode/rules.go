package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Rixmerz/opcode/internal/rules"
	"github.com/Rixmerz/opcode/internal/storage"
)

var (
	rulesProject        string
	rulesValidated      bool
	proposeEntity       string
	proposeFile         string
	proposeAI           string
	validateDescription string
	validateCorrection  string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage business rules",
	Long: `Business rules are domain facts the chunker proposes about code. They
stay pending until a human validates them; only validated rules feed
into the chunk graph.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending or validated rules",
	Run:   runRulesList,
}

var rulesProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a new rule for review",
	Run:   runRulesPropose,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <rule-id>",
	Short: "Validate a pending rule",
	Args:  cobra.ExactArgs(1),
	Run:   runRulesValidate,
}

func init() {
	rulesListCmd.Flags().StringVar(&rulesProject, "project", "", "Filter by project path")
	rulesListCmd.Flags().BoolVar(&rulesValidated, "validated", false, "List validated rules instead of pending")

	rulesProposeCmd.Flags().StringVar(&rulesProject, "project", "", "Project path")
	rulesProposeCmd.Flags().StringVar(&proposeEntity, "entity", "", "Entity the rule is about")
	rulesProposeCmd.Flags().StringVar(&proposeFile, "file", "", "File the rule was found in")
	rulesProposeCmd.Flags().StringVar(&proposeAI, "interpretation", "", "Proposed interpretation of the code")
	_ = rulesProposeCmd.MarkFlagRequired("interpretation")

	rulesValidateCmd.Flags().StringVar(&validateDescription, "description", "", "Final rule description")
	rulesValidateCmd.Flags().StringVar(&validateCorrection, "correction", "", "Correction to the proposed interpretation")
	_ = rulesValidateCmd.MarkFlagRequired("description")

	rulesCmd.AddCommand(rulesListCmd, rulesProposeCmd, rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}

func newRulesService() (*rules.Service, func()) {
	root := mustGetRoot()
	cfg := mustLoadConfig(root)
	logger := newLogger(cfg)
	db := mustOpenStore(root, logger)
	svc := rules.NewService(storage.NewBusinessRuleRepository(db), logger)
	return svc, func() { _ = db.Close() }
}

func runRulesList(cmd *cobra.Command, args []string) {
	svc, closeStore := newRulesService()
	defer closeStore()

	var (
		list []*storage.BusinessRule
		err  error
	)
	if rulesValidated {
		list, err = svc.Validated(rulesProject)
	} else {
		list, err = svc.Pending(rulesProject)
	}
	if err != nil {
		fail("failed to list rules: %v", err)
	}
	if list == nil {
		list = []*storage.BusinessRule{}
	}
	printJSON(list)
}

func runRulesPropose(cmd *cobra.Command, args []string) {
	svc, closeStore := newRulesService()
	defer closeStore()

	project := rulesProject
	if project == "" {
		project = mustGetRoot()
	}

	rule, err := svc.Propose(rules.Proposal{
		ProjectPath:      project,
		EntityName:       proposeEntity,
		FilePath:         proposeFile,
		AiInterpretation: proposeAI,
	})
	if err != nil {
		fail("failed to propose rule: %v", err)
	}
	printJSON(rule)
}

func runRulesValidate(cmd *cobra.Command, args []string) {
	svc, closeStore := newRulesService()
	defer closeStore()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fail("invalid rule id %q", args[0])
	}

	var correction *string
	if validateCorrection != "" {
		correction = &validateCorrection
	}

	rule, err := svc.Validate(id, validateDescription, correction)
	if err != nil {
		fail("failed to validate rule: %v", err)
	}
	printJSON(rule)
}
