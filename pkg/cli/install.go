package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/aimux-org/aimux/pkg/downloader"
	"github.com/aimux-org/aimux/pkg/resolver"
)

func newInstallCommand() *Command {
	cmd := &Command{
		Name:        "install",
		Description: "Resolve and install plugins with their dependencies",
		Flags:       flag.NewFlagSet("install", flag.ExitOnError),
		Run:         runInstall,
	}

	cmd.Flags.Bool("no-deps", false, "Install only the named plugins, skipping dependency resolution")
	cmd.Flags.Bool("quiet", false, "Suppress progress output")

	return cmd
}

func runInstall(args []string) error {
	cmd := newInstallCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	noDeps := cmd.Flags.Lookup("no-deps").Value.String() == "true"
	quiet := cmd.Flags.Lookup("quiet").Value.String() == "true"

	specs := cmd.Flags.Args()
	if len(specs) == 0 {
		return fmt.Errorf("at least one plugin is required (owner/name[@constraint])")
	}

	e, err := newEngine()
	if err != nil {
		return err
	}
	ctx := context.Background()

	requests := make([]resolver.Request, 0, len(specs))
	for _, spec := range specs {
		req, err := parseSpec(spec)
		if err != nil {
			return err
		}
		requests = append(requests, req)
	}

	result, err := e.dist.Resolve(ctx, requests)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}
	if !result.OK() {
		for _, c := range result.Conflicts {
			fmt.Printf("conflict: %s\n", c)
		}
		return fmt.Errorf("resolution produced %d conflict(s)", len(result.Conflicts))
	}

	assignments := result.Assignments
	if noDeps {
		direct := assignments[:0]
		for _, a := range assignments {
			if a.Direct {
				direct = append(direct, a)
			}
		}
		assignments = direct
	}

	var progress downloader.ProgressFunc
	if !quiet {
		progress = func(p downloader.DownloadProgress) {
			if p.TotalBytes > 0 {
				fmt.Printf("\r  %.0f%% (%d/%d bytes)", p.Percentage(), p.BytesReceived, p.TotalBytes)
			}
		}
	}

	channels := make([]<-chan downloader.InstallationResult, 0, len(assignments))
	for _, a := range assignments {
		pkg, err := e.dist.PackageFor(ctx, a)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("Installing %s@%s\n", pkg.ID, pkg.Version)
		}
		channels = append(channels, e.downloader.Install(ctx, pkg, progress))
	}

	failed := 0
	for _, ch := range channels {
		res := <-ch
		if res.Err != nil {
			failed++
			fmt.Printf("\nfailed: %s@%s: %v\n", res.PluginID, res.Version, res.Err)
			continue
		}
		if !quiet {
			fmt.Printf("\ninstalled %s@%s (%d bytes in %s)\n",
				res.PluginID, res.Version, res.BytesDownloaded, res.Duration.Round(time.Millisecond))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d installation(s) failed", failed)
	}
	return nil
}
