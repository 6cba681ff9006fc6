// Package ucitest writes scripted stand-ins for a UCI engine so sessions can
// be exercised without a real engine binary.
package ucitest

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Script controls how the fake engine reacts. Each field is a shell snippet
// run for the matching command; empty fields use the defaults below.
type Script struct {
	OnUCI     string
	OnIsReady string
	OnGo      string
	OnStop    string
	OnQuit    string
	// AtEOF runs after stdin is closed.
	AtEOF string
}

const (
	DefaultUCI     = `echo "id name FakeFish 1.0"; echo "id author test"; echo "uciok"`
	DefaultIsReady = `echo "readyok"`
	DefaultQuit    = `exit 0`

	// Hang ignores the command entirely.
	Hang = `:`
	// SleepForever keeps the process alive as a single pid after stdin closes.
	SleepForever = `exec sleep 30`
)

// Transcript emits the given lines in order as the answer to "go".
func Transcript(lines ...string) string {
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString("echo '")
		sb.WriteString(strings.ReplaceAll(line, "'", `'\''`))
		sb.WriteString("'")
	}
	return sb.String()
}

const scriptTemplate = `#!/bin/sh
LOG="$1"
while IFS= read -r line; do
  if [ -n "$LOG" ]; then printf '%s\n' "$line" >> "$LOG"; fi
  case "$line" in
    uci) {{UCI}} ;;
    isready) {{ISREADY}} ;;
    go*) {{GO}} ;;
    stop) {{STOP}} ;;
    quit) {{QUIT}} ;;
  esac
done
{{EOF}}
`

// Write stores the fake engine in a temp dir and returns its path. The test
// is skipped where /bin/sh scripts cannot be executed.
func Write(t testing.TB, s Script) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("fake engine requires sh")
	}

	body := strings.NewReplacer(
		"{{UCI}}", orDefault(s.OnUCI, DefaultUCI),
		"{{ISREADY}}", orDefault(s.OnIsReady, DefaultIsReady),
		"{{GO}}", orDefault(s.OnGo, Hang),
		"{{STOP}}", orDefault(s.OnStop, Hang),
		"{{QUIT}}", orDefault(s.OnQuit, DefaultQuit),
		"{{EOF}}", s.AtEOF,
	).Replace(scriptTemplate)

	path := filepath.Join(t.TempDir(), "fakefish")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

// CommandLog returns a path the fake engine appends received commands to
// when passed as its first argument.
func CommandLog(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "commands.log")
}

// ReadLog returns the commands recorded so far.
func ReadLog(t testing.TB, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read command log: %v", err)
	}
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
