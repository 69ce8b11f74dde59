package deskcli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/phillip-england/checkdesk/internal/deskapp"
	"github.com/phillip-england/checkdesk/internal/envutil"
)

var ErrUsage = errors.New("usage")

func Execute(args []string) error {
	return execute(args, os.Stdout)
}

func execute(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return usageError()
	}

	switch args[0] {
	case "setup":
		return runSetup(args[1:], stdout)
	case "run":
		return runCommand(args[1:])
	case "batch":
		return runBatch(args[1:], stdout)
	case "help", "-h", "--help":
		PrintUsage(stdout)
		return nil
	default:
		return usageError()
	}
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: checkdesk setup [--env-file .env] [--force] [--addr :8090] [--profile desk.yaml]")
	fmt.Fprintln(w, "       checkdesk run [--env-file .env] [--roster roster.xlsx]")
	fmt.Fprintln(w, "       checkdesk batch --roster roster.xlsx --scans scans.txt --out checked.xlsx [--id-column N] [--card-column N] [--deadline HH:MM]")
}

func usageError() error {
	return fmt.Errorf("%w: checkdesk <setup|run|batch> [...]", ErrUsage)
}

func runSetup(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	envPath := fs.String("env-file", ".env", "path to .env file")
	force := fs.Bool("force", false, "overwrite existing env and profile files")
	addr := fs.String("addr", ":8090", "listen address for the desk")
	profilePath := fs.String("profile", "", "write a default desk profile to this path")
	exportDir := fs.String("export-dir", "exports", "directory for saved rosters")
	if err := fs.Parse(args); err != nil {
		return err
	}

	values := map[string]string{
		"DESK_ADDR":       *addr,
		"DESK_EXPORT_DIR": *exportDir,
	}
	if *profilePath != "" {
		values["DESK_PROFILE"] = *profilePath
	}

	if err := envutil.WriteDotEnv(*envPath, values, *force); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *envPath)

	if *profilePath == "" {
		return nil
	}
	if _, err := os.Stat(*profilePath); err == nil && !*force {
		fmt.Fprintf(stdout, "kept existing %s\n", *profilePath)
		return nil
	}
	if err := deskapp.WriteProfile(*profilePath, deskapp.DefaultProfile()); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", *profilePath)
	return nil
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	envPath := fs.String("env-file", ".env", "path to .env file")
	rosterPath := fs.String("roster", "", "roster to load at startup")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := envutil.LoadDotEnv(*envPath); err != nil {
		return fmt.Errorf("load %s: %w", *envPath, err)
	}

	cfg := deskapp.DefaultConfigFromEnv()
	if *rosterPath != "" {
		cfg.RosterPath = *rosterPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := deskapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runBatch(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	rosterPath := fs.String("roster", "", "roster spreadsheet to check in against")
	scansPath := fs.String("scans", "", "file with one scan per line")
	outPath := fs.String("out", "", "where to write the updated roster")
	profilePath := fs.String("profile", "", "desk profile providing defaults")
	idColumn := fs.Int("id-column", -1, "identifier column (table index)")
	cardColumn := fs.Int("card-column", -1, "card column (table index)")
	deadline := fs.String("deadline", "", "deadline as HH:MM")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rosterPath == "" || *scansPath == "" || *outPath == "" {
		return fmt.Errorf("%w: checkdesk batch --roster <file> --scans <file> --out <file>", ErrUsage)
	}

	profile, err := deskapp.LoadProfile(*profilePath)
	if err != nil {
		return err
	}
	if *idColumn >= 0 {
		profile.IdentifierColumn = *idColumn
	}
	if *cardColumn >= 0 {
		profile.CardColumn = *cardColumn
	}

	desk := deskapp.NewDesk(profile, nil, time.Now)
	if _, err := desk.LoadRosterFile(*rosterPath); err != nil {
		return err
	}
	if *deadline != "" {
		if _, err := desk.UpdateSettings(deskapp.SettingsUpdate{Deadline: deadline}); err != nil {
			return err
		}
	}

	scans, err := os.Open(*scansPath)
	if err != nil {
		return fmt.Errorf("open scans: %w", err)
	}
	defer scans.Close()

	scanner := bufio.NewScanner(scans)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := desk.Scan(line)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, formatEntry(entry))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read scans: %w", err)
	}

	written, err := desk.ExportRoster(*outPath)
	if err != nil {
		return err
	}
	progress := desk.Snapshot().Progress
	fmt.Fprintf(stdout, "checked in %d/%d\n", progress.Checked, progress.Total)
	fmt.Fprintf(stdout, "wrote %s\n", written)
	return nil
}

func formatEntry(entry deskapp.Entry) string {
	if !entry.OK {
		return fmt.Sprintf("fail\t%s: %s", entry.Reason, entry.Scan)
	}
	return fmt.Sprintf("ok\trow %d\t%s\t%s", entry.RowID, entry.Scan, entry.Label)
}
