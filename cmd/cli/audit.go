package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/invoicer/internal/infrastructure/audit"
	"github.com/turtacn/invoicer/internal/infrastructure/crypto"
	"github.com/turtacn/invoicer/internal/infrastructure/persistence/postgres"
)

const defaultStoredEventLimit = 100

var errLimitReached = errors.New("limit reached")

type verdictSource interface {
	Run(ctx context.Context, handle func(audit.Verdict) error) error
}

// storedEvents replays the newest rows of the audit_events table.
type storedEvents struct {
	repo  *postgres.AuditRepository
	key   []byte
	limit int
}

func (s storedEvents) Run(ctx context.Context, handle func(audit.Verdict) error) error {
	events, err := s.repo.Recent(ctx, s.limit)
	if err != nil {
		return err
	}
	for i, event := range events {
		v := audit.Verdict{Event: event, Offset: int64(i), Valid: audit.Verify(event, s.key)}
		if err := handle(v); err != nil {
			return err
		}
	}
	return nil
}

func newAuditVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit:verify",
		Short: "Check the signature of recorded audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDB, _ := cmd.Flags().GetBool("database")
			group, _ := cmd.Flags().GetString("group")
			limit, _ := cmd.Flags().GetInt("limit")

			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			if !fromDB && !env.cfg.Audit.Kafka.Enabled {
				return fmt.Errorf("audit.kafka is not enabled, use --database to read stored events")
			}
			secret, err := env.secret(cmd.Context())
			if err != nil {
				return err
			}
			key, err := crypto.DeriveKey(secret, audit.KeyInfo)
			if err != nil {
				return err
			}

			if fromDB {
				db, err := postgres.NewDBConnection(cmd.Context(), &env.cfg.Database, env.log)
				if err != nil {
					return err
				}
				defer db.Close()
				if limit <= 0 {
					limit = defaultStoredEventLimit
				}
				src := storedEvents{repo: postgres.NewAuditRepository(db.DB(), env.log), key: key, limit: limit}
				return verifyEvents(cmd, src, limit)
			}

			consumer := audit.NewKafkaConsumer(env.cfg.Audit.Kafka, group, key, env.log)
			defer consumer.Close()
			return verifyEvents(cmd, consumer, limit)
		},
	}
	cmd.Flags().Bool("database", false, "read the audit_events table instead of the Kafka topic")
	cmd.Flags().String("group", "invoicer-audit-verify", "Kafka consumer group id")
	cmd.Flags().Int("limit", 0, "stop after this many events (0 reads until interrupted, or 100 rows with --database)")
	return cmd
}

func verifyEvents(cmd *cobra.Command, src verdictSource, limit int) error {
	seen, tampered := 0, 0
	err := src.Run(cmd.Context(), func(v audit.Verdict) error {
		status := "ok"
		if !v.Valid {
			status = "TAMPERED"
			tampered++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d/%d %s %s %s\n", v.Partition, v.Offset, v.Event.ID, v.Event.Type, status)
		seen++
		if limit > 0 && seen >= limit {
			return errLimitReached
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Checked %d events, %d with a bad signature.\n", seen, tampered)
	if tampered > 0 {
		return fmt.Errorf("%d audit events failed verification", tampered)
	}
	return nil
}
