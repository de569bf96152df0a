package cli

import (
	"flag"
	"fmt"
)

func newRollbackCommand() *Command {
	cmd := &Command{
		Name:        "rollback",
		Description: "Restore the previously installed version of a plugin",
		Flags:       flag.NewFlagSet("rollback", flag.ExitOnError),
		Run:         runRollback,
	}
	return cmd
}

func runRollback(args []string) error {
	cmd := newRollbackCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	ids := cmd.Flags.Args()
	if len(ids) != 1 {
		return fmt.Errorf("exactly one plugin id is required")
	}

	e, err := newEngine()
	if err != nil {
		return err
	}
	if err := e.downloader.Rollback(ids[0]); err != nil {
		return err
	}
	fmt.Printf("rolled back %s\n", ids[0])
	return nil
}
