package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
)

// WrapProcess runs executable as a child process and forwards its JSON log lines
// to stdout. Anything the child prints after a line starting with "panic" is
// collected and reported as a single fatal record when the child exits.
// WrapProcess never returns: it exits with the child's exit code.
func WrapProcess(executable string, arg ...string) {
	supervisorLogger := NewLogger("Supervisor")
	defer handlePanic(supervisorLogger)

	r, w, err := os.Pipe()
	if err != nil {
		supervisorLogger.Fatal().Err(err).Msg("Could not create pipe for logs")
		os.Exit(1)
	}

	cmd := exec.Command(executable, arg...)
	cmd.Stderr = w
	cmd.Stdout = os.Stdout
	cmd.Env = os.Environ()

	if err = cmd.Start(); err != nil {
		supervisorLogger.Fatal().Err(err).Msg("Could not launch recognizer process")
		os.Exit(1)
	}
	exitCodeCh := make(chan int)
	logsCh := make(chan []byte)

	go waitForCommandToExit(cmd, supervisorLogger, exitCodeCh)
	go collectLogs(r, supervisorLogger, logsCh)

	collector := newPanicCollector(os.Stdout, supervisorLogger)
	for {
		select {
		case exitCode := <-exitCodeCh:
			handleExit(exitCode, collector.panicLogs(), supervisorLogger)
		case logsLineBytes := <-logsCh:
			collector.handleLine(logsLineBytes)
		}
	}
}

func waitForCommandToExit(cmd *exec.Cmd, supervisorLogger zerolog.Logger, exitCodeCh chan<- int) {
	defer handlePanic(supervisorLogger)
	err := cmd.Wait()
	if err == nil {
		exitCodeCh <- 0
		return
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		exitCodeCh <- 1
		return
	}
	exitCodeCh <- exitErr.ExitCode()
}

func collectLogs(r io.Reader, supervisorLogger zerolog.Logger, logsCh chan<- []byte) {
	defer handlePanic(supervisorLogger)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		logsCh <- line
	}
	if err := scanner.Err(); err != nil {
		supervisorLogger.Fatal().Err(err).Msg("Error scanning piped recognizer process's Stderr")
		os.Exit(1)
	}
}

func handleExit(exitCode int, panicLogs string, supervisorLogger zerolog.Logger) {
	if exitCode == 0 {
		supervisorLogger.Info().Msg("Exited with code 0")
	} else {
		supervisorLogger.
			Error().
			Err(errors.New(panicLogs)).
			Msgf("Recognizer exited with code: %d", exitCode)
	}
	os.Exit(exitCode)
}

type panicCollector struct {
	out        io.Writer
	logger     zerolog.Logger
	foundPanic bool
	builder    strings.Builder
}

func newPanicCollector(out io.Writer, supervisorLogger zerolog.Logger) *panicCollector {
	return &panicCollector{
		out:    out,
		logger: supervisorLogger,
	}
}

func (c *panicCollector) handleLine(logsLineBytes []byte) {
	logsLine := string(logsLineBytes)
	if !c.foundPanic && strings.HasPrefix(logsLine, "panic") {
		c.foundPanic = true
	}
	switch {
	case len(logsLineBytes) == 0:
		return
	case c.foundPanic:
		c.builder.WriteString(logsLine)
		c.builder.WriteByte('\n')
	case isJSON(logsLineBytes):
		_, _ = fmt.Fprintln(c.out, logsLine)
	default:
		c.logger.Error().Msgf("Got log line that is not JSON formatted: '%s'", logsLine)
	}
}

func (c *panicCollector) panicLogs() string {
	return c.builder.String()
}

func handlePanic(supervisorLogger zerolog.Logger) {
	r := recover()
	if r == nil {
		return
	}
	supervisorLogger.Fatal().
		Caller().
		Str("error", fmt.Sprint(r)).
		Str("stack_trace", string(debug.Stack())).
		Msg("Supervisor panicked and exited")
}

func isJSON(b []byte) bool {
	var js json.RawMessage
	err := json.Unmarshal(b, &js)
	return err == nil && js != nil
}
