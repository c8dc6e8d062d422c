package croninstall

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
)

// Marker tags every crontab line this installer owns. Any existing line
// containing it, or containing the project directory path, is stripped
// before the new entries are appended, so re-running is idempotent.
const Marker = "LSE Trading System"

// Fixed schedule expressions. The scheduler package runs the same literals
// in process; the two routes must never drift apart.
const (
	PriceUpdateSchedule  = "0 22 * * *"      // daily, 22:00
	TradingCycleSchedule = "0 9,13,17 * * 1-5" // weekdays at 9, 13 and 17
)

// Subcommands the cron entries invoke
const (
	priceUpdateCommand  = "update-prices"
	tradingCycleCommand = "trading-cycle"
)

// Runner abstracts the crontab binary so the install logic is testable
type Runner interface {
	// ReadCrontab returns the current crontab text. A user without a
	// crontab yields an empty string, not an error.
	ReadCrontab() (string, error)
	// InstallCrontab replaces the crontab with the staged file's contents
	InstallCrontab(path string) error
}

type systemRunner struct{}

func (systemRunner) ReadCrontab() (string, error) {
	out, err := exec.Command("crontab", "-l").Output()
	if err != nil {
		// crontab -l exits 1 when the user has no crontab yet
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("crontab -l failed: %w", err)
	}
	return string(out), nil
}

func (systemRunner) InstallCrontab(path string) error {
	out, err := exec.Command("crontab", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("crontab install failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Installer installs the two scheduled jobs into the user's crontab
type Installer struct {
	runner     Runner
	projectDir string
	binary     string
}

// New creates an installer using the real crontab binary
func New(projectDir, binary string) *Installer {
	return &Installer{runner: systemRunner{}, projectDir: projectDir, binary: binary}
}

// NewWithRunner creates an installer with a custom runner (tests)
func NewWithRunner(runner Runner, projectDir, binary string) *Installer {
	return &Installer{runner: runner, projectDir: projectDir, binary: binary}
}

// Install replaces any previously installed entries with the current two
// schedule lines, preserving unrelated crontab lines verbatim and in order.
// The new crontab is staged to a temp file and handed to crontab in a
// single call; the temp file is removed regardless of the outcome.
func (in *Installer) Install() error {
	if err := ValidateSchedules(); err != nil {
		return err
	}

	logsDir := filepath.Join(in.projectDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	existing, err := in.runner.ReadCrontab()
	if err != nil {
		return fmt.Errorf("failed to read current crontab: %w", err)
	}

	content := Render(existing, in.projectDir, in.binary)

	tmp, err := os.CreateTemp("", "lse-crontab-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close staging file: %w", err)
	}

	if err := in.runner.InstallCrontab(tmpPath); err != nil {
		return err
	}

	log.Printf("Installed crontab entries for %s", in.projectDir)
	return nil
}

// Render builds the new crontab text from the existing one: previously
// installed lines are filtered out, everything else is kept verbatim, and
// the managed block is appended.
func Render(existing, projectDir, binary string) string {
	kept := FilterManaged(strings.Split(existing, "\n"), projectDir)

	var b strings.Builder
	for _, line := range kept {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, line := range Entries(projectDir, binary) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// FilterManaged drops lines owned by this installer: anything containing
// the marker or the project directory path. Trailing empty lines from the
// split are dropped too; interior lines survive untouched.
func FilterManaged(lines []string, projectDir string) []string {
	var kept []string
	for _, line := range lines {
		if strings.Contains(line, Marker) {
			continue
		}
		if projectDir != "" && strings.Contains(line, projectDir) {
			continue
		}
		kept = append(kept, line)
	}
	// Drop trailing blanks so repeated installs do not accumulate them
	for len(kept) > 0 && strings.TrimSpace(kept[len(kept)-1]) == "" {
		kept = kept[:len(kept)-1]
	}
	return kept
}

// Entries returns the managed crontab lines: a comment banner carrying the
// marker, then the two schedule lines.
func Entries(projectDir, binary string) []string {
	return []string{
		fmt.Sprintf("# %s - managed entries, do not edit", Marker),
		fmt.Sprintf("%s cd %s && %s %s >> logs/price_update.log 2>&1",
			PriceUpdateSchedule, projectDir, binary, priceUpdateCommand),
		fmt.Sprintf("%s cd %s && %s %s >> logs/trading_cycle.log 2>&1",
			TradingCycleSchedule, projectDir, binary, tradingCycleCommand),
	}
}

// ValidateSchedules parses both schedule literals with a standard five-field
// cron parser. A typo in either constant fails the install instead of
// producing a crontab cron itself would reject.
func ValidateSchedules() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, expr := range []string{PriceUpdateSchedule, TradingCycleSchedule} {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", expr, err)
		}
	}
	return nil
}
