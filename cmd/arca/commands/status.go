package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/internal/cli/health"
	"github.com/arcafs/arca/internal/cli/output"
	"github.com/arcafs/arca/internal/cli/timeutil"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the arca server.

This command checks the server health by calling the health endpoints
and displays status, uptime, and per-dependency readiness (catalog,
blob backends, task queue).

Examples:
  # Check status (uses default settings)
  arca status

  # Check status with custom API port
  arca status --api-port 9080

  # Output as JSON
  arca status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/arca/arca.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "API server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running   bool                 `json:"running" yaml:"running"`
	PID       int                  `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message   string               `json:"message" yaml:"message"`
	StartedAt string               `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string               `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Healthy   bool                 `json:"healthy" yaml:"healthy"`
	Checks    []health.CheckStatus `json:"checks,omitempty" yaml:"checks,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{
		Running: false,
		Healthy: false,
		Message: "Server is not running",
	}

	// Use default PID file if not specified
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	pidData, err := os.ReadFile(pidPath)
	if err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
		if err == nil {
			// Check if process is running
			process, err := os.FindProcess(pid)
			if err == nil {
				// On Unix, FindProcess always succeeds, we need to send signal 0 to check
				err = process.Signal(syscall.Signal(0))
				if err == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	// Check health endpoint (works with or without a PID file)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/healthz", statusAPIPort))
	if err == nil {
		defer func() { _ = resp.Body.Close() }()

		var healthResp health.Response
		if err := json.NewDecoder(resp.Body).Decode(&healthResp); err == nil {
			status.Running = true
			status.Healthy = healthResp.Status == "healthy"
			status.StartedAt = healthResp.Data.StartedAt
			status.Uptime = healthResp.Data.Uptime
			if status.Healthy {
				status.Message = "Server is running and healthy"
			} else {
				status.Message = fmt.Sprintf("Server is running but unhealthy: %s", healthResp.Error)
			}
		} else {
			status.Running = true
			status.Message = "Server is running but health response invalid"
		}
	} else if status.Running {
		// PID file says running but health check failed
		status.Message = "Server process exists but health check failed"
	}

	// Readiness carries the per-dependency checks
	if status.Running {
		if ready := fetchReadiness(client, statusAPIPort); ready != nil {
			status.Checks = ready.Checks
			if ready.Status != "healthy" {
				status.Healthy = false
				status.Message = "Server is running but a dependency is unhealthy"
			}
		}
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func fetchReadiness(client *http.Client, port int) *health.ReadyResponse {
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/healthz/ready", port))
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	var ready health.ReadyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		return nil
	}
	return &ready
}

func printStatusTable(status ServerStatus) {
	fmt.Println()
	fmt.Println("Arca Server Status")
	fmt.Println("==================")
	fmt.Println()

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:     \033[33m● Running (unhealthy)\033[0m\n")
		}
		if status.PID != 0 {
			fmt.Printf("  PID:        %d\n", status.PID)
		}
		if status.StartedAt != "" {
			fmt.Printf("  Started:    %s\n", timeutil.FormatTime(status.StartedAt))
		}
		if status.Uptime != "" {
			fmt.Printf("  Uptime:     %s\n", timeutil.FormatUptime(status.Uptime))
		}
	} else {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
	}

	if len(status.Checks) > 0 {
		fmt.Println()
		for _, check := range status.Checks {
			mark := "\033[32m✓\033[0m"
			if check.Status != "healthy" {
				mark = "\033[31m✗\033[0m"
			}
			fmt.Printf("  %s %-16s %s\n", mark, check.Name, check.Status)
			if check.Error != "" {
				fmt.Printf("      %s\n", check.Error)
			}
		}
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
