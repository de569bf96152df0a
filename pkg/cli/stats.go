package cli

import (
	"encoding/json"
	"flag"
	"os"
)

func newStatsCommand() *Command {
	cmd := &Command{
		Name:        "stats",
		Description: "Show download and resolution statistics",
		Flags:       flag.NewFlagSet("stats", flag.ExitOnError),
		Run:         runStats,
	}
	return cmd
}

func runStats(args []string) error {
	cmd := newStatsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	e, err := newEngine()
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"downloads": e.downloader.Statistics(),
		"registry":  e.registry.Statistics(),
		"resolver":  e.resolver.Statistics(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
