package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestMain lets the test binary stand in for dcat: scripts run it with
// DCAT_RUN_MAIN=1 and it behaves like the real command.
func TestMain(m *testing.M) {
	if os.Getenv("DCAT_RUN_MAIN") == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestScripts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping CLI scripts in short mode")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	engine := &script.Engine{
		Cmds:  scripttest.DefaultCmds(),
		Conds: scripttest.DefaultConds(),
	}
	engine.Cmds["dcat"] = script.Program(exe, nil, 0)

	home := t.TempDir()
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + home,
		"XDG_CONFIG_HOME=" + filepath.Join(home, ".config"),
		"USER=tester",
		"DCAT_RUN_MAIN=1",
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_AUTHOR_NAME=Tester",
		"GIT_AUTHOR_EMAIL=tester@example.com",
		"GIT_COMMITTER_NAME=Tester",
		"GIT_COMMITTER_EMAIL=tester@example.com",
		"NO_COLOR=1",
	}
	scripttest.Test(t, context.Background(), engine, env, "testdata/*.txt")
}
