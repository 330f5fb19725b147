package main

import (
	"context"
	"fmt"

	businessflow "github.com/amirphl/counter-app/business_flow"
	"github.com/amirphl/counter-app/repository"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newCounterCommand exposes the counter operations on the command line
func newCounterCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Read or change a counter without starting the server",
	}

	ops := []struct {
		use   string
		short string
		run   func(businessflow.CounterFlow, context.Context, string) (int64, error)
	}{
		{"get", "Print the counter value", businessflow.CounterFlow.GetCounterValue},
		{"increment", "Add one to the counter", businessflow.CounterFlow.IncrementCounter},
		{"decrement", "Subtract one from the counter", businessflow.CounterFlow.DecrementCounter},
		{"reset", "Set the counter to 0", businessflow.CounterFlow.ResetCounter},
	}

	for _, op := range ops {
		cmd.AddCommand(&cobra.Command{
			Use:   op.use + " [name]",
			Short: op.short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				name := ""
				if len(args) == 1 {
					name = args[0]
				}
				return runCounterOperation(c, v, name, op.run)
			},
		})
	}

	return cmd
}

func runCounterOperation(
	c *cobra.Command,
	v *viper.Viper,
	name string,
	run func(businessflow.CounterFlow, context.Context, string) (int64, error),
) error {
	cfg, log, err := loadRuntime(v)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := initializeDatabase(cfg.Database, log)
	if err != nil {
		return err
	}
	app := &Application{config: cfg, logger: log, db: db}
	defer app.close()

	// Mutations write through to the cache shared with running servers
	counterCache, err := app.initializeCounterCache(c.Context())
	if err != nil {
		return err
	}
	defer func() {
		for _, fn := range app.stopFuncs {
			fn()
		}
	}()

	flow := businessflow.NewCounterFlow(repository.NewCounterRepository(db), counterCache, cfg.Counter, log)

	value, err := run(flow, c.Context(), name)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.OutOrStdout(), value)
	return nil
}
