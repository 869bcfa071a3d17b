package cli

import (
	"fmt"
	"io"

	"github.com/studiowebux/loadhook/internal/stresstest"
)

// ListRuns prints the most recent runs recorded in the ledger at dbPath
func ListRuns(dbPath string, limit int, out io.Writer) error {
	manager, err := stresstest.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	runs, err := manager.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	return writeRuns(out, runs)
}

// ShowRun prints one recorded run with its effective configuration
func ShowRun(dbPath, uuid, format string, out io.Writer) error {
	manager, err := stresstest.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	run, err := manager.GetRunByUUID(uuid)
	if err != nil {
		return err
	}

	iterations, err := manager.GetIterations(run.ID)
	if err != nil {
		return err
	}

	summary := newSummary(run, stresstest.StatsFromIterations(iterations))
	output, err := formatSummary(summary, format)
	if err != nil {
		return err
	}
	fmt.Fprint(out, output)
	if format == "" || format == "text" {
		fmt.Fprintf(out, "\nConfig:\n%s", run.ConfigYAML)
	}
	return nil
}

// DeleteRun removes one recorded run and its iterations from the ledger
func DeleteRun(dbPath, uuid string, out io.Writer) error {
	manager, err := stresstest.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	run, err := manager.GetRunByUUID(uuid)
	if err != nil {
		return err
	}
	if err := manager.DeleteRun(run.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted run %s\n", run.UUID)
	return nil
}
