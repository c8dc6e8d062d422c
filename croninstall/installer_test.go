package croninstall

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner records what the installer does instead of touching the real
// crontab
type fakeRunner struct {
	crontab      string
	installed    []string
	stagedPaths  []string
	installCalls int
}

func (f *fakeRunner) ReadCrontab() (string, error) {
	return f.crontab, nil
}

func (f *fakeRunner) InstallCrontab(path string) error {
	f.installCalls++
	f.stagedPaths = append(f.stagedPaths, path)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.installed = append(f.installed, string(data))
	f.crontab = string(data)
	return nil
}

func TestInstallWritesBothEntries(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	in := NewWithRunner(runner, dir, "/usr/local/bin/lse-trading")

	if err := in.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if runner.installCalls != 1 {
		t.Fatalf("expected 1 crontab install call, got %d", runner.installCalls)
	}

	got := runner.crontab
	if !strings.Contains(got, Marker) {
		t.Fatalf("installed crontab missing marker banner:\n%s", got)
	}
	wantLines := []string{
		PriceUpdateSchedule + " cd " + dir + " && /usr/local/bin/lse-trading update-prices >> logs/price_update.log 2>&1",
		TradingCycleSchedule + " cd " + dir + " && /usr/local/bin/lse-trading trading-cycle >> logs/trading_cycle.log 2>&1",
	}
	for _, want := range wantLines {
		if !strings.Contains(got, want) {
			t.Fatalf("installed crontab missing line %q:\n%s", want, got)
		}
	}
}

func TestInstallCreatesLogsDir(t *testing.T) {
	dir := t.TempDir()
	in := NewWithRunner(&fakeRunner{}, dir, "lse-trading")

	if err := in.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("logs directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("logs is not a directory")
	}
}

func TestInstallPreservesForeignEntries(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{crontab: "MAILTO=ops@example.com\n0 1 * * * /usr/bin/certbot renew\n"}
	in := NewWithRunner(runner, dir, "lse-trading")

	if err := in.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	lines := strings.Split(runner.crontab, "\n")
	if lines[0] != "MAILTO=ops@example.com" {
		t.Fatalf("first foreign line not preserved in place: %q", lines[0])
	}
	if lines[1] != "0 1 * * * /usr/bin/certbot renew" {
		t.Fatalf("second foreign line not preserved in place: %q", lines[1])
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{crontab: "0 1 * * * /usr/bin/certbot renew\n"}
	in := NewWithRunner(runner, dir, "lse-trading")

	if err := in.Install(); err != nil {
		t.Fatalf("first Install: %v", err)
	}
	first := runner.crontab

	if err := in.Install(); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if runner.crontab != first {
		t.Fatalf("second install changed the crontab:\nfirst:\n%s\nsecond:\n%s", first, runner.crontab)
	}

	if n := strings.Count(runner.crontab, "update-prices"); n != 1 {
		t.Fatalf("expected exactly 1 update-prices line after reinstall, got %d", n)
	}
}

func TestInstallRemovesStagingFile(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	in := NewWithRunner(runner, dir, "lse-trading")

	if err := in.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if len(runner.stagedPaths) != 1 {
		t.Fatalf("expected 1 staged file, got %d", len(runner.stagedPaths))
	}
	if _, err := os.Stat(runner.stagedPaths[0]); !os.IsNotExist(err) {
		t.Fatalf("staging file %s still exists after install", runner.stagedPaths[0])
	}
}

func TestFilterManaged(t *testing.T) {
	dir := "/opt/lse"
	lines := []string{
		"0 1 * * * /usr/bin/certbot renew",
		"# " + Marker + " - managed entries, do not edit",
		"0 22 * * * cd " + dir + " && lse-trading update-prices >> logs/price_update.log 2>&1",
		"30 6 * * * /usr/bin/backup",
		"",
		"",
	}

	kept := FilterManaged(lines, dir)
	want := []string{
		"0 1 * * * /usr/bin/certbot renew",
		"30 6 * * * /usr/bin/backup",
	}
	if len(kept) != len(want) {
		t.Fatalf("expected %d kept lines, got %d: %v", len(want), len(kept), kept)
	}
	for i := range want {
		if kept[i] != want[i] {
			t.Fatalf("kept[%d] = %q, want %q", i, kept[i], want[i])
		}
	}
}

func TestValidateSchedules(t *testing.T) {
	if err := ValidateSchedules(); err != nil {
		t.Fatalf("ValidateSchedules: %v", err)
	}
}

func TestScheduleLiterals(t *testing.T) {
	if PriceUpdateSchedule != "0 22 * * *" {
		t.Fatalf("unexpected price update schedule %q", PriceUpdateSchedule)
	}
	if TradingCycleSchedule != "0 9,13,17 * * 1-5" {
		t.Fatalf("unexpected trading cycle schedule %q", TradingCycleSchedule)
	}
}
