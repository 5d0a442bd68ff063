// Command switchboardctl is the operator CLI for manual intervention on
// in-flight or dead-lettered requests: reroute, cancel, abort, replay,
// retry, and force-complete, each durably attributed via internal/audit
// per spec.md's invariant 4.
//
// Grounded on sanket-sapate-arc-core's apisix-go-runner main.go for the
// cobra root-command-plus-subcommands shape, the only cobra user
// anywhere in the example pack.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/tzeusy/switchboard/internal/audit"
	"github.com/tzeusy/switchboard/internal/bootstrap"
	"github.com/tzeusy/switchboard/internal/config"
	"github.com/tzeusy/switchboard/internal/connectors"
	"github.com/tzeusy/switchboard/internal/dlq"
	"github.com/tzeusy/switchboard/internal/inbox"
	"github.com/tzeusy/switchboard/internal/migrate"
	"github.com/tzeusy/switchboard/internal/registry"
	"github.com/tzeusy/switchboard/internal/router"
	"github.com/tzeusy/switchboard/internal/triage"
)

var (
	operatorIdentity string
	reason           string
)

func main() {
	root := &cobra.Command{
		Use:   "switchboardctl",
		Short: "Operator controls for the switchboard message-routing core",
	}
	root.PersistentFlags().StringVar(&operatorIdentity, "operator", os.Getenv("USER"), "identity recorded against this action")
	root.PersistentFlags().StringVar(&reason, "reason", "", "why this action is being taken (required)")

	root.AddCommand(newRerouteCmd(), newCancelCmd(), newAbortCmd(), newReplayCmd(), newForceCompleteCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func requireReason(cmd *cobra.Command) error {
	if reason == "" {
		return fmt.Errorf("--reason is required for %s", cmd.Name())
	}
	return nil
}

func newRerouteCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "reroute <request-id>",
		Short: "Manually override the dispatch target for a request still in flight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireReason(cmd); err != nil {
				return err
			}
			requestID := args[0]
			ctx := context.Background()
			app, cleanup, err := bootstrap.NewApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := app.Inbox.GetByRequestID(ctx, requestID)
			outcome := audit.OutcomeSuccess
			var outcomeDetails json.RawMessage
			if err != nil {
				outcome = audit.OutcomeFailed
				outcomeDetails, _ = json.Marshal(map[string]string{"error": err.Error()})
			} else if rec.LifecycleState.Terminal() {
				outcome = audit.OutcomeRejected
				outcomeDetails, _ = json.Marshal(map[string]string{"error": "request already in a terminal state"})
			} else {
				patch := map[string]any{"processing_metadata": map[string]any{"manual_reroute_target": target}}
				if txErr := app.Inbox.TransitionLifecycle(ctx, requestID, rec.LifecycleState, inbox.StateTriaged, patch); txErr != nil {
					outcome = audit.OutcomeFailed
					outcomeDetails, _ = json.Marshal(map[string]string{"error": txErr.Error()})
				}
			}

			payload, _ := json.Marshal(map[string]string{"target": target})
			return app.Audit.Record(ctx, audit.Entry{
				ActionType:       audit.ActionManualReroute,
				TargetRequestID:  requestID,
				TargetTable:      "message_inbox",
				OperatorIdentity: operatorIdentity,
				Reason:           reason,
				ActionPayload:    payload,
				Outcome:          outcome,
				OutcomeDetails:   outcomeDetails,
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "butler name to route to on the next retry")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func transitionWithAudit(actionType audit.ActionType, to inbox.LifecycleState) *cobra.Command {
	use := map[audit.ActionType]string{
		audit.ActionCancelRequest: "cancel <request-id>",
		audit.ActionAbortRequest:  "abort <request-id>",
	}[actionType]

	cmd := &cobra.Command{
		Use:   use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireReason(cmd); err != nil {
				return err
			}
			requestID := args[0]
			ctx := context.Background()
			app, cleanup, err := bootstrap.NewApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := app.Inbox.GetByRequestID(ctx, requestID)
			outcome := audit.OutcomeSuccess
			var outcomeDetails json.RawMessage
			if err != nil {
				outcome = audit.OutcomeFailed
				outcomeDetails, _ = json.Marshal(map[string]string{"error": err.Error()})
			} else if rec.LifecycleState.Terminal() {
				outcome = audit.OutcomeRejected
				outcomeDetails, _ = json.Marshal(map[string]string{"error": "request already in a terminal state"})
			} else if txErr := app.Inbox.TransitionLifecycle(ctx, requestID, rec.LifecycleState, to, nil); txErr != nil {
				outcome = audit.OutcomeFailed
				outcomeDetails, _ = json.Marshal(map[string]string{"error": txErr.Error()})
			}

			return app.Audit.Record(ctx, audit.Entry{
				ActionType:       actionType,
				TargetRequestID:  requestID,
				TargetTable:      "message_inbox",
				OperatorIdentity: operatorIdentity,
				Reason:           reason,
				Outcome:          outcome,
				OutcomeDetails:   outcomeDetails,
			})
		},
	}
	return cmd
}

func newCancelCmd() *cobra.Command {
	cmd := transitionWithAudit(audit.ActionCancelRequest, inbox.StateFailed)
	cmd.Short = "Cancel a request that has not yet reached a terminal state"
	return cmd
}

func newAbortCmd() *cobra.Command {
	cmd := transitionWithAudit(audit.ActionAbortRequest, inbox.StateFailed)
	cmd.Short = "Abort an in-flight dispatch, marking it failed immediately"
	return cmd
}

func newForceCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force-complete <request-id>",
		Short: "Force a stuck request to completed, e.g. after manual out-of-band resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireReason(cmd); err != nil {
				return err
			}
			requestID := args[0]
			ctx := context.Background()
			app, cleanup, err := bootstrap.NewApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := app.Inbox.GetByRequestID(ctx, requestID)
			outcome := audit.OutcomeSuccess
			var outcomeDetails json.RawMessage
			if err != nil {
				outcome = audit.OutcomeFailed
				outcomeDetails, _ = json.Marshal(map[string]string{"error": err.Error()})
			} else if rec.LifecycleState.Terminal() {
				outcome = audit.OutcomeRejected
				outcomeDetails, _ = json.Marshal(map[string]string{"error": "request already in a terminal state"})
			} else if txErr := app.Inbox.TransitionLifecycle(ctx, requestID, rec.LifecycleState, inbox.StateCompleted, nil); txErr != nil {
				outcome = audit.OutcomeFailed
				outcomeDetails, _ = json.Marshal(map[string]string{"error": txErr.Error()})
			}

			return app.Audit.Record(ctx, audit.Entry{
				ActionType:       audit.ActionForceComplete,
				TargetRequestID:  requestID,
				TargetTable:      "message_inbox",
				OperatorIdentity: operatorIdentity,
				Reason:           reason,
				Outcome:          outcome,
				OutcomeDetails:   outcomeDetails,
			})
		},
	}
	return cmd
}

func newReplayCmd() *cobra.Command {
	var retryOnly bool
	cmd := &cobra.Command{
		Use:   "replay <dlq-id>",
		Short: "Replay a dead-lettered entry through the full ingest pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireReason(cmd); err != nil {
				return err
			}
			dlqID := args[0]
			ctx := context.Background()
			app, cleanup, err := bootstrap.NewApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			actionType := audit.ActionControlledReplay
			if retryOnly {
				actionType = audit.ActionControlledRetry
			}

			entry, replayErr := app.Replayer.Replay(ctx, dlqID)
			outcome := audit.OutcomeSuccess
			var outcomeDetails json.RawMessage
			if replayErr != nil {
				outcome = audit.OutcomeFailed
				outcomeDetails, _ = json.Marshal(map[string]string{"error": replayErr.Error()})
			}
			targetRequestID := dlqID
			if entry != nil {
				targetRequestID = entry.OriginalRequestID
			}

			auditErr := app.Audit.Record(ctx, audit.Entry{
				ActionType:       actionType,
				TargetRequestID:  targetRequestID,
				TargetTable:      "dead_letter_queue",
				OperatorIdentity: operatorIdentity,
				Reason:           reason,
				Outcome:          outcome,
				OutcomeDetails:   outcomeDetails,
			})
			if auditErr != nil {
				return auditErr
			}
			return replayErr
		},
	}
	cmd.Flags().BoolVar(&retryOnly, "retry", false, "record this as a controlled_retry rather than a controlled_replay")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply every component's pending goose migrations to its backing database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			mainDB, err := sql.Open("postgres", cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("opening main database: %w", err)
			}
			defer mainDB.Close()

			if err := migrate.Run(ctx, mainDB, []migrate.Source{
				{Name: "inbox", FS: inbox.Migrations},
				{Name: "triage", FS: triage.Migrations},
				{Name: "registry", FS: registry.Migrations},
				{Name: "router", FS: router.Migrations},
				{Name: "connectors", FS: connectors.Migrations},
			}); err != nil {
				return err
			}

			auditDB, err := sql.Open("postgres", cfg.AuditDBDSN)
			if err != nil {
				return fmt.Errorf("opening audit database: %w", err)
			}
			defer auditDB.Close()

			return migrate.Run(ctx, auditDB, []migrate.Source{
				{Name: "dlq", FS: dlq.Migrations},
				{Name: "audit", FS: audit.Migrations},
			})
		},
	}
}
