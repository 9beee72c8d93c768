package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ShellTool executes shell commands inside the workspace, guarded by a
// deny-pattern list and an execution timeout.
type ShellTool struct {
	workingDir          string
	timeout             time.Duration
	denyPatterns        []*regexp.Regexp
	restrictToWorkspace bool
}

func NewShellTool(workingDir string) *ShellTool {
	denyPatterns := []*regexp.Regexp{
		regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
		regexp.MustCompile(`\b(format|mkfs|diskpart)\b\s`),
		regexp.MustCompile(`\bdd\s+if=`),
		regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
		regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
		regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
		regexp.MustCompile(`\.krishna/config\b`),
		regexp.MustCompile(`/etc/(shadow|gshadow|master\.passwd)\b`),
		regexp.MustCompile(`/\.(ssh|gnupg)/`),
		regexp.MustCompile(`\.(pem|p12|pfx|key|keystore|jks)\b`),
		regexp.MustCompile(`\bcurl\b.*\b(--data|--upload-file|-d|-F|-T)\b`),
		regexp.MustCompile(`\bwget\b.*\b--post-(data|file)\b`),
	}

	return &ShellTool{
		workingDir:          workingDir,
		timeout:             60 * time.Second,
		denyPatterns:        denyPatterns,
		restrictToWorkspace: true,
	}
}

func (t *ShellTool) Name() string {
	return "shell_command"
}

func (t *ShellTool) Description() string {
	return "Execute a shell command within the workspace directory. Commands accessing paths outside the workspace are blocked."
}

func (t *ShellTool) Parameters() map[string]interface{} {
	return NewObject().
		Prop("command", String().Describe("The shell command to execute on the terminal as it is")).
		Optional("working_dir", String().Describe("Optional working directory for the command")).
		Build()
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command, ok := stringArg(args, "command")
	if !ok {
		return "", InvalidArgs("command is required")
	}

	cwd := t.workingDir
	if wd, ok := stringArg(args, "working_dir"); ok && wd != "" {
		if t.restrictToWorkspace && t.workingDir != "" {
			absWd, err := filepath.Abs(wd)
			if err == nil {
				absWorkspace, err := filepath.Abs(t.workingDir)
				if err == nil {
					rel, err := filepath.Rel(absWorkspace, absWd)
					if err != nil || strings.HasPrefix(rel, "..") {
						return "Error: Command blocked by safety guard (working_dir outside workspace)", nil
					}
				}
			}
		}
		cwd = wd
	}

	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	if guardError := t.guardCommand(command, cwd); guardError != "" {
		return fmt.Sprintf("Error: %s", guardError), nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	if cwd != "" {
		cmd.Dir = cwd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\nSTDERR:\n" + stderr.String()
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return fmt.Sprintf("Error: Command timed out after %v", t.timeout), nil
		}
		output += fmt.Sprintf("\nExit code: %v", err)
	}

	if strings.TrimSpace(output) == "" {
		if err == nil {
			return "Command executed successfully with no output.", nil
		}
		return fmt.Sprintf("Command exited with error and produced no output: %v", err), nil
	}

	maxLen := 10000
	if len(output) > maxLen {
		output = output[:maxLen] + fmt.Sprintf("\n... (truncated, %d more chars)", len(output)-maxLen)
	}

	return output, nil
}

func (t *ShellTool) guardCommand(command, cwd string) string {
	cmd := strings.TrimSpace(command)
	lower := strings.ToLower(cmd)

	for _, pattern := range t.denyPatterns {
		if pattern.MatchString(lower) {
			return "Command blocked by safety guard (dangerous pattern detected)"
		}
	}

	if t.restrictToWorkspace {
		if strings.Contains(cmd, "../") {
			return "Command blocked by safety guard (path traversal detected)"
		}

		cwdPath, err := filepath.Abs(cwd)
		if err != nil {
			return ""
		}

		// Expand ~ and $HOME before path checking to prevent bypass.
		expandedCmd := cmd
		if home, err := os.UserHomeDir(); err == nil {
			expandedCmd = strings.ReplaceAll(expandedCmd, "~/", home+"/")
			expandedCmd = strings.ReplaceAll(expandedCmd, "$HOME/", home+"/")
			expandedCmd = strings.ReplaceAll(expandedCmd, "${HOME}/", home+"/")
		}

		pathPattern := regexp.MustCompile(`/[^\s"']+`)
		matches := pathPattern.FindAllString(expandedCmd, -1)

		for _, raw := range matches {
			if isSafeSystemPath(raw) {
				continue
			}

			p, err := filepath.Abs(raw)
			if err != nil {
				continue
			}

			rel, err := filepath.Rel(cwdPath, p)
			if err != nil {
				continue
			}

			if strings.HasPrefix(rel, "..") {
				return "Command blocked by safety guard (path outside working dir)"
			}
		}
	}

	return ""
}

// safeSystemPrefixes are read-only virtual filesystem paths safe to
// access even when workspace restriction is enabled.
var safeSystemPrefixes = []string{
	"/sys/class/",
	"/sys/devices/",
	"/proc/cpuinfo",
	"/proc/meminfo",
	"/proc/uptime",
	"/proc/loadavg",
	"/proc/version",
	"/proc/stat",
	"/proc/net/",
	"/dev/null",
}

func isSafeSystemPath(path string) bool {
	for _, prefix := range safeSystemPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (t *ShellTool) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

func (t *ShellTool) SetRestrictToWorkspace(restrict bool) {
	t.restrictToWorkspace = restrict
}
