package cli

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
)

func newListCommand() *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List installed plugins",
		Flags:       flag.NewFlagSet("list", flag.ExitOnError),
		Run:         runList,
	}
	return cmd
}

func runList(args []string) error {
	cmd := newListCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	e, err := newEngine()
	if err != nil {
		return err
	}

	plugins, err := e.downloader.InstalledPlugins()
	if err != nil {
		return err
	}
	if len(plugins) == 0 {
		fmt.Println("no plugins installed")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLUGIN\tVERSION\tSIZE\tINSTALLED")
	for _, p := range plugins {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			p.ID, p.Version, p.Size, p.InstalledAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
