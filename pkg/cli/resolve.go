package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/aimux-org/aimux/pkg/resolver"
)

func newResolveCommand() *Command {
	cmd := &Command{
		Name:        "resolve",
		Description: "Resolve plugin dependencies without installing",
		Flags:       flag.NewFlagSet("resolve", flag.ExitOnError),
		Run:         runResolve,
	}

	cmd.Flags.Bool("json", false, "Emit the resolution as JSON")

	return cmd
}

func runResolve(args []string) error {
	cmd := newResolveCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	asJSON := cmd.Flags.Lookup("json").Value.String() == "true"

	specs := cmd.Flags.Args()
	if len(specs) == 0 {
		return fmt.Errorf("at least one plugin is required (owner/name[@constraint])")
	}

	e, err := newEngine()
	if err != nil {
		return err
	}

	requests := make([]resolver.Request, 0, len(specs))
	for _, spec := range specs {
		req, err := parseSpec(spec)
		if err != nil {
			return err
		}
		requests = append(requests, req)
	}

	result, err := e.dist.Resolve(context.Background(), requests)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}

	if asJSON {
		type jsonAssignment struct {
			PluginID   string   `json:"plugin_id"`
			Version    string   `json:"version"`
			Direct     bool     `json:"direct"`
			Requesters []string `json:"requesters"`
		}
		out := struct {
			Assignments []jsonAssignment `json:"assignments"`
			Conflicts   []string         `json:"conflicts,omitempty"`
		}{}
		for _, a := range result.Assignments {
			out.Assignments = append(out.Assignments, jsonAssignment{
				PluginID:   a.PluginID,
				Version:    a.Version.String(),
				Direct:     a.Direct,
				Requesters: a.Requesters,
			})
		}
		for _, c := range result.Conflicts {
			out.Conflicts = append(out.Conflicts, c.String())
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, a := range result.Assignments {
		marker := " "
		if a.Direct {
			marker = "*"
		}
		fmt.Printf("%s %s@%s\n", marker, a.PluginID, a.Version)
	}
	for _, c := range result.Conflicts {
		fmt.Printf("! %s\n", c)
	}
	if !result.OK() {
		return fmt.Errorf("resolution produced %d conflict(s)", len(result.Conflicts))
	}
	return nil
}
