package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/hone/internal/config"
)

// cmdDaemon dispatches the honed worker management subcommands
func cmdDaemon(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hone daemon <start|stop|status|logs>")
	}
	switch args[0] {
	case "start":
		return cmdDaemonStart()
	case "stop":
		return cmdDaemonStop()
	case "status":
		return cmdDaemonStatus()
	case "logs":
		return cmdDaemonLogs()
	default:
		return fmt.Errorf("unknown daemon command: %s (valid: start, stop, status, logs)", args[0])
	}
}

// workerAddr resolves the honed status address from the local config
func workerAddr() string {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		cfg = config.DefaultLocalConfig()
	}
	return fmt.Sprintf("http://%s:%d", cfg.Worker.Bind, cfg.Worker.Port)
}

// cmdDaemonStart starts honed in the background
func cmdDaemonStart() error {
	if isRunning() {
		fmt.Println("✓ Worker is already running")
		return nil
	}

	honeDir, err := config.EnsureHoneDir()
	if err != nil {
		return fmt.Errorf("setup hone directory: %w", err)
	}

	honedPath, err := findWorkerBinary()
	if err != nil {
		return fmt.Errorf("find worker binary: %w", err)
	}

	cmd := exec.Command(honedPath)
	cmd.Dir = honeDir
	cmd.Stdout = nil
	cmd.Stderr = nil

	// Detach from parent process (platform-specific)
	configureWorkerProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	fmt.Print("Starting worker...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning() {
			fmt.Println(" ✓")
			fmt.Printf("Worker running at %s\n", workerAddr())
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("worker failed to start (check logs with 'hone daemon logs')")
}

// cmdDaemonStop stops honed
func cmdDaemonStop() error {
	if !isRunning() {
		fmt.Println("Worker is not running")
		return nil
	}

	honeDir, err := config.HoneDir()
	if err != nil {
		return err
	}

	pidPath := filepath.Join(honeDir, pidFile)
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping worker...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning() {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("worker did not stop gracefully")
}

// cmdDaemonStatus shows worker status
func cmdDaemonStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	resp, err := http.Get(workerAddr() + "/v1/status")
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	var status struct {
		Status         string `json:"status"`
		Version        string `json:"version"`
		UptimeSeconds  int64  `json:"uptime_seconds"`
		QueueConnected bool   `json:"queue_connected"`
		JobsProcessed  int64  `json:"jobs_processed"`
		JobsFailed     int64  `json:"jobs_failed"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	queueState := "disconnected"
	if status.QueueConnected {
		queueState = "connected"
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Uptime:    %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	fmt.Printf("Queue:     %s\n", queueState)
	fmt.Printf("Jobs:      %d processed, %d failed\n", status.JobsProcessed, status.JobsFailed)
	fmt.Printf("Address:   %s\n", workerAddr())

	return nil
}

// cmdDaemonLogs shows worker logs
func cmdDaemonLogs() error {
	honeDir, err := config.HoneDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(honeDir, "logs", "honed.log")

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No log file found. Start the worker first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// Seek to end and go back ~4KB for recent logs
	info, _ := file.Stat()
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	_, _ = file.Seek(offset, 0)

	// Skip partial first line if we seeked
	if offset > 0 {
		reader := bufio.NewReader(file)
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}

	return nil
}

// isRunning checks if the worker is running by calling the health endpoint
func isRunning() bool {
	resp, err := http.Get(workerAddr() + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findWorkerBinary locates the honed binary
func findWorkerBinary() (string, error) {
	if path, err := exec.LookPath("honed"); err == nil {
		return path, nil
	}

	// Check relative to this binary
	self, err := os.Executable()
	if err == nil {
		dir := filepath.Dir(self)
		path := filepath.Join(dir, "honed")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	locations := []string{
		"/usr/local/bin/honed",
		"./honed",
		"./cmd/honed/honed",
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("honed binary not found (build with 'go build ./cmd/honed')")
}
