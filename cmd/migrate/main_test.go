package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"

	"github.com/wolfman30/booking-reminders/pkg/logging"
)

type fakeMigrator struct {
	upErr      error
	steps      []int
	forced     int
	version    uint
	versionErr error
}

func (f *fakeMigrator) Up() error { return f.upErr }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.forced = v
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, false, f.versionErr }

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand(nil)
	if err != nil || cmd.verb != "up" {
		t.Fatalf("expected default up, got %+v %v", cmd, err)
	}
	cmd, err = parseCommand([]string{"force", "3"})
	if err != nil || cmd.verb != "force" || cmd.version != 3 {
		t.Fatalf("expected force 3, got %+v %v", cmd, err)
	}
	for _, args := range [][]string{{"force"}, {"force", "x"}, {"sideways"}} {
		if _, err := parseCommand(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestRunUpTreatsNoChangeAsSuccess(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info")

	if err := run(&fakeMigrator{upErr: migrate.ErrNoChange}, command{verb: "up"}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "already up to date") {
		t.Fatalf("expected up-to-date log, got %s", buf.String())
	}

	boom := errors.New("boom")
	if err := run(&fakeMigrator{upErr: boom}, command{verb: "up"}, logger); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestRunDownForceAndVersion(t *testing.T) {
	logger := logging.NewWithWriter(&bytes.Buffer{}, "error")
	m := &fakeMigrator{version: 2}

	if err := run(m, command{verb: "down"}, logger); err != nil || len(m.steps) != 1 || m.steps[0] != -1 {
		t.Fatalf("expected one step down, got %v %v", m.steps, err)
	}
	if err := run(m, command{verb: "force", version: 1}, logger); err != nil || m.forced != 1 {
		t.Fatalf("expected force 1, got %d %v", m.forced, err)
	}
	if err := run(m, command{verb: "version"}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := run(&fakeMigrator{versionErr: migrate.ErrNilVersion}, command{verb: "version"}, logger); err != nil {
		t.Fatalf("nil version should not fail: %v", err)
	}
}
