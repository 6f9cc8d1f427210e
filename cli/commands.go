package cli

import (
	"context"
	"flag"
	"fmt"
	"github.com/denismitr/batchmig/internal/config"
	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"
	"io"
	"time"
)

const usage = `usage: batchmig [-config path] <command> [flags]

commands:
  init                     write a configuration stub
  migrate                  run every pending migration as a new batch
  rollback [-steps N] [-batch B]
                           reverse the last N batches or exactly batch B
  reset                    reverse every migration
  refresh                  reset and migrate again
  status                   list migrations and their batches
  seed -name Name          run a seeder
  make:migration -name n   create an empty migration
  make:seeder -name Name   create an empty seeder`

const commandTimeout = 120 * time.Second

type command func(ctx context.Context, app *App, out io.Writer, args []string) error

var commands = map[string]command{
	"migrate":        migrate,
	"rollback":       rollback,
	"reset":          reset,
	"refresh":        refresh,
	"status":         status,
	"seed":           runSeeder,
	"make:migration": makeMigration,
	"make:seeder":    makeSeeder,
}

// Run executes one command line and returns the process exit code.
// Options are applied to the App the command runs on.
func Run(args []string, out io.Writer, opts ...OptionFunc) int {
	fs := flag.NewFlagSet("batchmig", flag.ContinueOnError)
	fs.SetOutput(out)
	cfgPath := fs.String("config", config.DefaultPath, "path to the batchmig yaml configuration")
	fs.Usage = func() {
		fmt.Fprintln(out, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return 1
	}

	cmdName, cmdArgs := fs.Arg(0), fs.Args()[1:]

	if cmdName == "init" {
		if err := config.Init(*cfgPath); err != nil {
			return fail(out, err)
		}

		done(out, "created "+*cfgPath)
		return 0
	}

	if err := execute(*cfgPath, cmdName, cmdArgs, out, opts); err != nil {
		return fail(out, err)
	}

	return 0
}

func execute(cfgPath, cmdName string, args []string, out io.Writer, opts []OptionFunc) (err error) {
	cmd, ok := commands[cmdName]
	if !ok {
		return errors.Errorf("unknown command [%s]", cmdName)
	}

	app, closer, createErr := NewFromYaml(cfgPath, out, opts...)
	if createErr != nil {
		return createErr
	}

	defer func() {
		if closeErr := closer(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return cmd(ctx, app, out, args)
}

func migrate(ctx context.Context, app *App, out io.Writer, _ []string) error {
	migrated, err := app.Migrate(ctx)
	if err != nil {
		return err
	}

	done(out, fmt.Sprintf("%d migrated", len(migrated)))

	return nil
}

func rollback(ctx context.Context, app *App, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	fs.SetOutput(out)
	steps := fs.Int("steps", 1, "number of batches to rollback")
	batch := fs.Uint("batch", 0, "rollback exactly this batch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rolledBack, err := app.Rollback(ctx, *steps, *batch)
	if err != nil {
		return err
	}

	done(out, fmt.Sprintf("%d rolled back", len(rolledBack)))

	return nil
}

func reset(ctx context.Context, app *App, out io.Writer, _ []string) error {
	rolledBack, err := app.Reset(ctx)
	if err != nil {
		return err
	}

	done(out, fmt.Sprintf("%d rolled back", len(rolledBack)))

	return nil
}

func refresh(ctx context.Context, app *App, out io.Writer, _ []string) error {
	migrated, err := app.Refresh(ctx)
	if err != nil {
		return err
	}

	done(out, fmt.Sprintf("%d migrated", len(migrated)))

	return nil
}

func status(ctx context.Context, app *App, out io.Writer, _ []string) error {
	statuses, err := app.Status(ctx)
	if err != nil {
		return err
	}

	if len(statuses) == 0 {
		done(out, "no migrations found")
		return nil
	}

	for _, s := range statuses {
		switch {
		case s.Missing:
			fmt.Fprintln(out, aurora.Red("missing"), s.Key, fmt.Sprintf("(batch %d)", s.Batch))
		case s.Ran:
			fmt.Fprintln(out, aurora.Green("ran    "), s.Key, fmt.Sprintf("(batch %d)", s.Batch))
		default:
			fmt.Fprintln(out, aurora.Yellow("pending"), s.Key)
		}
	}

	return nil
}

func runSeeder(ctx context.Context, app *App, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(out)
	name := fs.String("name", "DatabaseSeeder", "seeder to run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := app.Seed(ctx, *name); err != nil {
		return err
	}

	done(out, *name+" seeded")

	return nil
}

func makeMigration(_ context.Context, app *App, out io.Writer, args []string) error {
	name, err := requireName("make:migration", out, args)
	if err != nil {
		return err
	}

	path, err := app.MakeMigration(name)
	if err != nil {
		return err
	}

	done(out, "created "+path)

	return nil
}

func makeSeeder(_ context.Context, app *App, out io.Writer, args []string) error {
	name, err := requireName("make:seeder", out, args)
	if err != nil {
		return err
	}

	path, err := app.MakeSeeder(name)
	if err != nil {
		return err
	}

	done(out, "created "+path)

	return nil
}

func requireName(cmd string, out io.Writer, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	name := fs.String("name", "", "name of the file to create")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	if *name == "" {
		return "", errors.Errorf("%s requires -name", cmd)
	}

	return *name, nil
}

func done(out io.Writer, msg string) {
	fmt.Fprintln(out, aurora.Green("batchmig: "), msg)
}

func fail(out io.Writer, err error) int {
	fmt.Fprintln(out, aurora.Red("batchmig: "), err.Error())
	return 1
}
