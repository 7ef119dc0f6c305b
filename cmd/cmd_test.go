package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/record"
)

// executeCommand runs root with args and returns combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// isolate points every state and config location at a fresh temp dir and
// resets flag values left over from earlier commands.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_DATA_HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("PROMPTWATCH_STORAGE", "sqlite")
	t.Setenv("PROMPTWATCH_DATABASE_PATH", tmp+"/prompts.db")
	t.Chdir(tmp)

	statusJSON = false
	sessionsAll = false
	promptsSession, promptsProject, promptsFormat, promptsOutput = "", "", "text", ""
	promptsLimit = 20
	plainOutput = false
	runMetricsAddr, runStorage = "", ""
	envFile, logLevel = ".env", ""
	return tmp
}

// seedPrompts stores records in the sqlite database isolate configured.
func seedPrompts(t *testing.T, dir string, records ...*record.PromptRecord) {
	t.Helper()
	repo, err := record.NewSQLiteRepository(dir + "/prompts.db")
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()
	for _, r := range records {
		if _, err := repo.Add(context.Background(), r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
}

func promptAt(id, session, project, prompt, response string, minute int) *record.PromptRecord {
	return &record.PromptRecord{
		ID:           id,
		PromptText:   prompt,
		ResponseText: response,
		ProjectName:  project,
		SessionID:    session,
		Timestamp:    time.Date(2026, 3, 1, 9, minute, 0, 0, time.UTC),
		Metadata:     map[string]string{record.MetaSource: record.SourceTerminalMonitor},
	}
}
