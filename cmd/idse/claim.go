package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/untoldecay/idse/internal/claims"
	"github.com/untoldecay/idse/internal/config"
	"github.com/untoldecay/idse/internal/types"
)

var (
	claimProject  string
	claimClass    string
	claimSession  string
	claimStages   []string
	claimEvidence []string
	claimReason   string
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Manage blueprint claims",
}

func newLifecycle(cmd *cobra.Command) (*claims.Lifecycle, func(), error) {
	store, err := openStore(rootCtx)
	if err != nil {
		return nil, nil, err
	}
	lc := claims.New(store, claims.Options{
		TemporalStabilityDays:        config.GetFloat64("promotion.temporal_stability_days"),
		DuplicateSimilarityThreshold: config.GetFloat64("promotion.duplicate_similarity_threshold"),
	})
	return lc, func() { _ = store.Close() }, nil
}

var claimDeclareCmd = &cobra.Command{
	Use:   "declare <claim text>",
	Short: "Declare an axiom from the blueprint session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, closeStore, err := newLifecycle(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		claim, err := lc.Declare(rootCtx, claims.DeclareParams{
			Project:        claimProject,
			ClaimText:      args[0],
			Classification: types.Classification(claimClass),
			SourceSession:  claimSession,
			SourceStages:   claimStages,
			Actor:          actorFlag,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(claim)
		}
		fmt.Printf("Declared claim #%d (%s)\n", claim.ID, claim.Classification)
		return nil
	},
}

var claimPromoteCmd = &cobra.Command{
	Use:   "promote <claim text>",
	Short: "Promote a converged claim through the gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, closeStore, err := newLifecycle(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		claim, rec, err := lc.Promote(rootCtx, claims.PromoteParams{
			Project:        claimProject,
			ClaimText:      args[0],
			Classification: types.Classification(claimClass),
			EvidenceIDs:    claimEvidence,
			Actor:          actorFlag,
		})
		var denied *claims.GateDeniedError
		if errors.As(err, &denied) {
			if jsonOutput {
				_ = printJSON(denied.Record)
			} else {
				fmt.Println("Promotion denied:")
				for _, code := range denied.Reasons {
					fmt.Printf("  - %s\n", code)
				}
			}
			os.Exit(1)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"claim": claim, "promotion_record": rec})
		}
		fmt.Printf("Promoted claim #%d (record #%d)\n", claim.ID, rec.ID)
		return nil
	},
}

var claimEvaluateCmd = &cobra.Command{
	Use:   "evaluate <claim text>",
	Short: "Evaluate the promotion gate without admitting a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, closeStore, err := newLifecycle(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		rec, reasons, err := lc.EvaluatePromotion(rootCtx, claims.PromoteParams{
			Project:        claimProject,
			ClaimText:      args[0],
			Classification: types.Classification(claimClass),
			EvidenceIDs:    claimEvidence,
			Actor:          actorFlag,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(rec)
		}
		fmt.Printf("Decision: %s\n", rec.Decision)
		for _, code := range reasons {
			fmt.Printf("  - %s\n", code)
		}
		return nil
	},
}

var claimSupersedeCmd = &cobra.Command{
	Use:   "supersede <claim-id> <successor-id>",
	Short: "Retire a claim in favor of a successor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		claimID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid claim id %q", args[0])
		}
		successorID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid successor id %q", args[1])
		}

		lc, closeStore, err := newLifecycle(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := lc.Supersede(rootCtx, claimID, successorID, claimReason, actorFlag); err != nil {
			return err
		}
		fmt.Printf("Claim #%d superseded by #%d\n", claimID, successorID)
		return nil
	},
}

var claimInvalidateCmd = &cobra.Command{
	Use:   "invalidate <claim-id>",
	Short: "Invalidate a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		claimID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid claim id %q", args[0])
		}

		lc, closeStore, err := newLifecycle(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := lc.Invalidate(rootCtx, claimID, claimReason, actorFlag); err != nil {
			return err
		}
		fmt.Printf("Claim #%d invalidated\n", claimID)
		return nil
	},
}

var claimReinforceCmd = &cobra.Command{
	Use:   "reinforce <claim-id> <session> <stage>",
	Short: "Record reinforcing evidence for an active claim",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		claimID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid claim id %q", args[0])
		}

		lc, closeStore, err := newLifecycle(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		event, err := lc.Reinforce(rootCtx, claimID, args[1], types.Stage(args[2]), actorFlag)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(event)
		}
		fmt.Printf("%s (event #%d)\n", event.Reason, event.ID)
		return nil
	},
}

var claimListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active claims",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, closeStore, err := newLifecycle(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		active, err := lc.ActiveClaims(rootCtx, claimProject)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(active)
		}
		for _, c := range active {
			fmt.Printf("#%d [%s|%s] %s\n", c.ID, c.Origin, c.Classification, c.ClaimText)
		}
		return nil
	},
}

func init() {
	claimCmd.PersistentFlags().StringVarP(&claimProject, "project", "p", "", "project name")
	_ = claimCmd.MarkPersistentFlagRequired("project")

	claimDeclareCmd.Flags().StringVar(&claimClass, "class", string(types.ClassInvariant), "claim classification")
	claimDeclareCmd.Flags().StringVar(&claimSession, "session", types.BlueprintSessionID, "source session")
	claimDeclareCmd.Flags().StringSliceVar(&claimStages, "stages", nil, "source stages")

	claimPromoteCmd.Flags().StringVar(&claimClass, "class", string(types.ClassInvariant), "claim classification")
	claimPromoteCmd.Flags().StringSliceVar(&claimEvidence, "evidence", nil, "evidence artifact idse ids")
	claimEvaluateCmd.Flags().StringVar(&claimClass, "class", string(types.ClassInvariant), "claim classification")
	claimEvaluateCmd.Flags().StringSliceVar(&claimEvidence, "evidence", nil, "evidence artifact idse ids")

	claimSupersedeCmd.Flags().StringVar(&claimReason, "reason", "", "lifecycle event reason")
	claimInvalidateCmd.Flags().StringVar(&claimReason, "reason", "", "lifecycle event reason")

	claimCmd.AddCommand(claimDeclareCmd, claimPromoteCmd, claimEvaluateCmd,
		claimSupersedeCmd, claimInvalidateCmd, claimReinforceCmd, claimListCmd)
	rootCmd.AddCommand(claimCmd)
}
