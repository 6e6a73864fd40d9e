package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as kind and reports the first problem.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		_, err := LoadServerConfig(path)
		return err
	case "client":
		_, err := LoadClientConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const serverTemplate = `# runtime_dir defaults to $XDG_RUNTIME_DIR/remoteflow
runtime_dir = ""
process_id = "remoteflow"
service = "main"
control_addr = "127.0.0.1:7420"
cors_origins = ["http://localhost:3000"]
auto_start = false
status_file = true

[foreground]
notification_id = 1
channel_id = "in_service_channel"
channel_name = "in service"
importance = "low"
heartbeat_interval = "1s"

[log]
level = "info"
json = false
`

const clientTemplate = `runtime_dir = ""
process_id = "remoteflow"
service = "main"
control_addr = "127.0.0.1:7420"
name = "client"
count = 120
interval = "1s"
read_limit = 10
linger = "1s"
connect_attempts = 10

[log]
level = "info"
`
