package main

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.slackrelay.serve"
	systemdUnit  = "slackrelay.service"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Install or remove slackrelay as a user service (launchd/systemd)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install slackrelay as a user daemon",
		Long:  "Generates and installs a service file that runs 'slackrelay serve' on login.",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			serveArgs, workDir, err := daemonServeArgs()
			if err != nil {
				return err
			}

			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(execPath, serveArgs, workDir)
			case "linux":
				return installSystemd(execPath, serveArgs, workDir)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the slackrelay user daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch runtime.GOOS {
			case "darwin":
				return uninstallLaunchd()
			case "linux":
				return uninstallSystemd()
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
		},
	})
	return cmd
}

// daemonServeArgs resolves --config and --env-file to absolute paths so the
// service does not depend on its working directory.
func daemonServeArgs() ([]string, string, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	args := []string{"serve"}
	if configPath != "" {
		p, err := filepath.Abs(configPath)
		if err != nil {
			return nil, "", err
		}
		args = append(args, "--config", p)
	}
	env, err := filepath.Abs(envFile)
	if err != nil {
		return nil, "", err
	}
	args = append(args, "--env-file", env)
	return args, workDir, nil
}

func installLaunchd(execPath string, args []string, workDir string) error {
	home, _ := os.UserHomeDir()
	plistDir := filepath.Join(home, "Library", "LaunchAgents")
	plistPath := filepath.Join(plistDir, launchdLabel+".plist")
	logDir := filepath.Join(home, "Library", "Logs", "slackrelay")

	// Ensure log directory exists.
	os.MkdirAll(logDir, 0o755)

	plist := renderLaunchd(execPath, args, workDir, filepath.Join(logDir, "slackrelay.log"))
	if err := os.MkdirAll(plistDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(plistPath, []byte(plist), 0o644); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", plistPath)
	fmt.Printf("To start: launchctl load %s\n", plistPath)
	fmt.Printf("To stop:  launchctl unload %s\n", plistPath)
	return nil
}

func uninstallLaunchd() error {
	home, _ := os.UserHomeDir()
	plistPath := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", plistPath)
	return nil
}

func installSystemd(execPath string, args []string, workDir string) error {
	home, _ := os.UserHomeDir()
	unitDir := filepath.Join(home, ".config", "systemd", "user")
	unitPath := filepath.Join(unitDir, systemdUnit)

	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(unitPath, []byte(renderSystemd(execPath, args, workDir)), 0o644); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", unitPath)
	fmt.Printf("To start:  systemctl --user start slackrelay\n")
	fmt.Printf("To enable: systemctl --user enable slackrelay\n")
	fmt.Printf("To stop:   systemctl --user stop slackrelay\n")
	return nil
}

func uninstallSystemd() error {
	home, _ := os.UserHomeDir()
	unitPath := filepath.Join(home, ".config", "systemd", "user", systemdUnit)
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove unit: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", unitPath)
	return nil
}

func renderLaunchd(execPath string, args []string, workDir, logPath string) string {
	var argv strings.Builder
	for _, a := range append([]string{execPath}, args...) {
		fmt.Fprintf(&argv, "        <string>%s</string>\n", html.EscapeString(a))
	}
	plist := strings.ReplaceAll(launchdTemplate, "{{LABEL}}", launchdLabel)
	plist = strings.ReplaceAll(plist, "{{ARGS}}", strings.TrimSuffix(argv.String(), "\n"))
	plist = strings.ReplaceAll(plist, "{{WORKDIR}}", html.EscapeString(workDir))
	plist = strings.ReplaceAll(plist, "{{LOG}}", html.EscapeString(logPath))
	return plist
}

func renderSystemd(execPath string, args []string, workDir string) string {
	quoted := make([]string, 0, len(args)+1)
	for _, a := range append([]string{execPath}, args...) {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted = append(quoted, a)
	}
	unit := strings.ReplaceAll(systemdTemplate, "{{EXEC}}", strings.Join(quoted, " "))
	return strings.ReplaceAll(unit, "{{WORKDIR}}", workDir)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
{{ARGS}}
    </array>
    <key>WorkingDirectory</key>
    <string>{{WORKDIR}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=slackrelay Slack message relay
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
WorkingDirectory={{WORKDIR}}
ExecStart={{EXEC}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
