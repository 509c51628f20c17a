package recorder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Device is a selectable capture device
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommandRunner runs a command and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner is the CommandRunner backed by os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

const powerShellDeviceQuery = "Get-AudioDevice -List | Where-Object {$_.Type -eq 'Recording'} | " +
	"Select-Object -Property Name, ID | ConvertTo-Json -Compress"

// ListDevices enumerates capture devices on goos. Linux uses `arecord -l`,
// Windows the AudioDeviceCmdlets PowerShell module. Other platforms return
// an empty list.
func ListDevices(ctx context.Context, goos string, run CommandRunner) ([]Device, error) {
	if run == nil {
		run = ExecRunner
	}

	switch goos {
	case "linux":
		out, err := run(ctx, "arecord", "-l")
		if err != nil {
			return nil, err
		}
		return ParseArecordList(out), nil
	case "windows":
		out, err := run(ctx, "powershell.exe", "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", powerShellDeviceQuery)
		if err != nil {
			if strings.Contains(err.Error(), "Get-AudioDevice") && strings.Contains(err.Error(), "not recognized") {
				return nil, fmt.Errorf("AudioDeviceCmdlets module not found, install it with Install-Module -Name AudioDeviceCmdlets -Scope CurrentUser: %w", err)
			}
			return nil, err
		}
		return ParsePowerShellDevices(out)
	default:
		return []Device{}, nil
	}
}

var arecordCardLine = regexp.MustCompile(`^card (\d+): (.+?) \[(.+?)\], device (\d+):`)

// ParseArecordList extracts hw:card,device entries from `arecord -l` output
func ParseArecordList(out []byte) []Device {
	devices := []Device{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		match := arecordCardLine.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		id := fmt.Sprintf("hw:%s,%s", match[1], match[4])
		devices = append(devices, Device{
			ID:   id,
			Name: fmt.Sprintf("%s (%s)", match[2], id),
		})
	}
	return devices
}

type powerShellDevice struct {
	Name string `json:"Name"`
	ID   string `json:"ID"`
}

// ParsePowerShellDevices decodes ConvertTo-Json output, which is a single
// object when there is exactly one device and an array otherwise.
func ParsePowerShellDevices(out []byte) ([]Device, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return []Device{}, nil
	}

	var raw []powerShellDevice
	if trimmed[0] == '{' {
		var single powerShellDevice
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("failed to parse PowerShell output: %w", err)
		}
		raw = append(raw, single)
	} else if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse PowerShell output: %w", err)
	}

	devices := make([]Device, 0, len(raw))
	for _, d := range raw {
		devices = append(devices, Device{ID: d.ID, Name: d.Name})
	}
	return devices, nil
}
