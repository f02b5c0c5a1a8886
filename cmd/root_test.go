package cmd

import (
	"testing"

	"record-sync/config"
)

func TestRootRegistersCommands(t *testing.T) {
	root := Root(&config.Config{})
	for _, name := range []string{"serve", "sync", "nonstandard", "report", "export", "trigger", "migrate"} {
		found, _, err := root.Find([]string{name})
		if err != nil || found == root {
			t.Fatalf("command %s not registered: %v", name, err)
		}
	}
}

func TestReportRejectsUnknownPeriod(t *testing.T) {
	root := Root(&config.Config{})
	root.SetArgs([]string{"report", "weekly"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unknown report period")
	}
}

func TestTriggerRejectsUnknownMode(t *testing.T) {
	root := Root(&config.Config{})
	root.SetArgs([]string{"trigger", "rebuild"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
