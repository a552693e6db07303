package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docuforge/conversion-engine/internal/queue"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// withDB opens the configured database, applies the schema, and hands the
// repositories to fn.
func withDB(fn func(ctx context.Context, repos *storage.Repositories) error) error {
	db, err := storage.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := storage.Migrate(ctx, db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return fn(ctx, storage.NewRepositories(db))
}

// newJobsCmd creates the jobs subcommand for inspecting conversions.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect conversion jobs",
	}

	var tenant string
	show := &cobra.Command{
		Use:   "show <conversion-id>",
		Short: "Show one conversion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			convID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("malformed conversion id: %w", err)
			}
			return withDB(func(ctx context.Context, repos *storage.Repositories) error {
				conv, err := repos.Conversions.Get(ctx, convID)
				if err != nil {
					return err
				}
				if outputJSON {
					return json.NewEncoder(os.Stdout).Encode(conv)
				}
				fmt.Printf("conversion %s\n", conv.ID)
				fmt.Printf("  %s -> %s  status=%s  progress=%d%%  retries=%d\n",
					conv.FromFormat, conv.ToFormat, conv.Status, conv.Progress, conv.RetryCount)
				if conv.ErrorMessage != nil {
					fmt.Printf("  error: %s\n", *conv.ErrorMessage)
				}
				if conv.ResultDocumentID != nil {
					fmt.Printf("  result document: %s\n", conv.ResultDocumentID)
				}
				if d := conv.ProcessingTime(); d > 0 {
					fmt.Printf("  processing time: %s\n", d)
				}
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <document-id>",
		Short: "List conversions for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("--tenant is required and must be a UUID")
			}
			docID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("malformed document id: %w", err)
			}
			return withDB(func(ctx context.Context, repos *storage.Repositories) error {
				convs, err := repos.Conversions.ListByDocument(ctx, tenantID, docID)
				if err != nil {
					return err
				}
				if outputJSON {
					return json.NewEncoder(os.Stdout).Encode(convs)
				}
				for _, conv := range convs {
					fmt.Printf("%s  %s -> %-5s  %-10s  %3d%%\n",
						conv.ID, conv.FromFormat, conv.ToFormat, conv.Status, conv.Progress)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&tenant, "tenant", "", "tenant UUID")

	var retryTenant string
	retry := &cobra.Command{
		Use:   "retry <conversion-id>",
		Short: "Re-queue a failed conversion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(retryTenant)
			if err != nil {
				return fmt.Errorf("--tenant is required and must be a UUID")
			}
			convID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("malformed conversion id: %w", err)
			}
			return withDB(func(ctx context.Context, repos *storage.Repositories) error {
				if err := repos.Conversions.ResetForRetry(ctx, tenantID, convID, cfg.Worker.MaxRetries); err != nil {
					return err
				}
				if cfg.Queue.Driver == "redis" {
					q, err := queue.NewRedisQueue(queue.RedisConfig{
						Addr:     cfg.Queue.Redis.Addr,
						Password: cfg.Queue.Redis.Password,
						DB:       cfg.Queue.Redis.DB,
						PoolSize: cfg.Queue.Redis.PoolSize,
					})
					if err != nil {
						return fmt.Errorf("connect queue: %w", err)
					}
					defer q.Close()
					conv, err := repos.Conversions.GetByID(ctx, tenantID, convID)
					if err != nil {
						return err
					}
					if err := q.Enqueue(ctx, queue.Job{ConversionID: conv.ID, Priority: conv.Priority}); err != nil {
						return fmt.Errorf("enqueue: %w", err)
					}
				} else {
					fmt.Fprintln(os.Stderr, "warning: memory queue configured; job is pending but not delivered to any worker")
				}
				fmt.Printf("conversion %s re-queued\n", convID)
				return nil
			})
		},
	}
	retry.Flags().StringVar(&retryTenant, "tenant", "", "tenant UUID")

	cmd.AddCommand(show, list, retry)
	return cmd
}

// newTenantCmd creates the tenant subcommand.
func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	var (
		plan  string
		quota int64
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Provision a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, repos *storage.Repositories) error {
				tenant := &storage.Tenant{
					Name:       args[0],
					PlanTier:   storage.PlanTier(plan),
					QuotaBytes: quota,
				}
				if err := repos.Tenants.Create(ctx, tenant); err != nil {
					return err
				}
				if outputJSON {
					return json.NewEncoder(os.Stdout).Encode(tenant)
				}
				fmt.Printf("created tenant %s (%s)\n", tenant.ID, tenant.Name)
				return nil
			})
		},
	}
	create.Flags().StringVar(&plan, "plan", "free", "plan tier: free, pro, or enterprise")
	create.Flags().Int64Var(&quota, "quota-bytes", 0, "storage quota in bytes, 0 for unlimited")

	usage := &cobra.Command{
		Use:   "usage <tenant-id>",
		Short: "Show a tenant's storage usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("malformed tenant id: %w", err)
			}
			return withDB(func(ctx context.Context, repos *storage.Repositories) error {
				tenant, err := repos.Tenants.GetByID(ctx, tenantID)
				if err != nil {
					return err
				}
				used, err := repos.Tenants.StorageUsed(ctx, tenantID)
				if err != nil {
					return err
				}
				if outputJSON {
					return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
						"tenant": tenant, "usedBytes": used,
					})
				}
				fmt.Printf("%s (%s): %d bytes used", tenant.Name, tenant.PlanTier, used)
				if tenant.QuotaBytes > 0 {
					fmt.Printf(" of %d", tenant.QuotaBytes)
				}
				fmt.Println()
				return nil
			})
		},
	}

	cmd.AddCommand(create, usage)
	return cmd
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, repos *storage.Repositories) error {
				fmt.Println("schema applied")
				return nil
			})
		},
	}
}
