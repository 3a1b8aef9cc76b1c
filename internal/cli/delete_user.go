package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/localdeck/steward/internal/control"
	"github.com/localdeck/steward/internal/core/config"
	"github.com/localdeck/steward/internal/core/domain"
	redisclient "github.com/localdeck/steward/internal/infra/redis"
	"github.com/spf13/cobra"
)

var (
	deletePolicy     string
	deleteBusinesses []string
	deleteEnqueue    bool
)

var deleteUserCmd = &cobra.Command{
	Use:   "delete-user [user_id] [email]",
	Short: "Delete an account and its data under the given listing policy",
	Args:  cobra.ExactArgs(2),
	Run:   runDeleteUser,
}

func init() {
	deleteUserCmd.Flags().StringVar(&deletePolicy, "policy", "soft", "owned listing policy: soft or hard")
	deleteUserCmd.Flags().StringArrayVar(&deleteBusinesses, "business", nil, "restrict hard deletion to this listing id (repeatable)")
	deleteUserCmd.Flags().BoolVar(&deleteEnqueue, "enqueue", false, "push the plan to the deletion queue instead of running inline")
	rootCmd.AddCommand(deleteUserCmd)
}

func runDeleteUser(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogging(cfg)

	plan := domain.DeletionPlan{
		UserID:      args[0],
		UserEmail:   args[1],
		BusinessIDs: deleteBusinesses,
		RequestedAt: time.Now().UTC(),
	}
	switch deletePolicy {
	case "hard":
		plan.Policy = domain.PolicyHardDelete
	case "soft":
		plan.Policy = domain.PolicySoftDelete
	default:
		fmt.Printf("Invalid policy %q: want soft or hard\n", deletePolicy)
		os.Exit(1)
	}

	ctx := context.Background()

	if deleteEnqueue {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = rc.Close()
		}()

		if err := rc.EnqueueDeletion(ctx, plan); err != nil {
			slog.Error("Failed to enqueue deletion", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Deletion for user %s enqueued (policy %s)\n", plan.UserID, plan.Policy)
		return
	}

	app, err := control.NewSteward(control.Config{
		Store: cfg.Store,
		Retry: cfg.Retry,
	})
	if err != nil {
		slog.Error("Failed to initialize Steward", "error", err)
		os.Exit(1)
	}

	res := app.RunDeletion(ctx, plan)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ENTITY\tROWS")

	entities := make([]string, 0, len(res.Counts))
	for entity := range res.Counts {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", entity, res.Counts[entity])
	}
	_ = w.Flush()

	for _, f := range res.Failures {
		fmt.Printf("FAILED %s %s: %s\n", f.Entity, f.RecordID, f.Error)
	}

	if !res.Success {
		fmt.Printf("Deletion for user %s failed\n", plan.UserID)
		os.Exit(1)
	}
	fmt.Printf("Deletion for user %s completed in %s\n", plan.UserID, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
}
