package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/roach88/enclave/internal/entity"
)

// SettingsEnv names the environment variable through which Command passes
// the job settings, JSON encoded, to the external generator.
const SettingsEnv = "ENCLAVE_JOB_SETTINGS"

// Command runs an external program as the generator. The source payload is
// written to its stdin and its stdout becomes the result payload.
type Command struct {
	Path string
	Args []string
}

// ParseCommand splits a whitespace-separated command line. No quoting is
// supported.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty generator command")
	}
	return Command{Path: fields[0], Args: fields[1:]}, nil
}

// Generate implements Generator.
func (c Command) Generate(ctx context.Context, payload string, settings entity.JobSettings) (string, error) {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = strings.NewReader(payload)
	cmd.Env = append(os.Environ(), SettingsEnv+"="+string(encoded))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", c.Path, err, msg)
		}
		return "", fmt.Errorf("%s: %w", c.Path, err)
	}
	return stdout.String(), nil
}
