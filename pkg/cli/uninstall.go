package cli

import (
	"flag"
	"fmt"
)

func newUninstallCommand() *Command {
	cmd := &Command{
		Name:        "uninstall",
		Description: "Remove installed plugins",
		Flags:       flag.NewFlagSet("uninstall", flag.ExitOnError),
		Run:         runUninstall,
	}
	return cmd
}

func runUninstall(args []string) error {
	cmd := newUninstallCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	ids := cmd.Flags.Args()
	if len(ids) == 0 {
		return fmt.Errorf("at least one plugin id is required")
	}

	e, err := newEngine()
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := e.downloader.Uninstall(id)
		if err != nil {
			return err
		}
		if removed {
			fmt.Printf("uninstalled %s\n", id)
		} else {
			fmt.Printf("%s is not installed\n", id)
		}
	}
	return nil
}
