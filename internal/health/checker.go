// Package health provides liveness checks for the frame bus segment and the
// MQTT broker.
package health

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// CheckResult contains the results of health checks
type CheckResult struct {
	SegmentPresent  bool   `json:"segment_present"`
	SegmentError    string `json:"segment_error,omitempty"`
	SegmentBytes    int64  `json:"segment_bytes,omitempty"`
	BrokerReachable bool   `json:"broker_reachable"`
	BrokerError     string `json:"broker_error,omitempty"`
	ResponseTime    int64  `json:"response_time_ms"`
	LastChecked     string `json:"last_checked"`
}

// Checker performs health checks on the bus segment and broker endpoint
type Checker struct {
	timeout time.Duration
}

// NewChecker creates a new health checker
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		timeout: timeout,
	}
}

// Check inspects the shared-memory segment for busName and TCP-pings the
// MQTT broker. An empty broker address skips the broker check and reports
// it unreachable without an error.
func (c *Checker) Check(busName, broker string) CheckResult {
	result := CheckResult{
		LastChecked: time.Now().Format(time.RFC3339),
	}

	result.SegmentPresent, result.SegmentBytes, result.SegmentError = c.segmentCheck(busName)

	if broker != "" {
		start := time.Now()
		result.BrokerReachable, result.BrokerError = c.tcpPing(broker)
		result.ResponseTime = time.Since(start).Milliseconds()
	}

	return result
}

// segmentCheck stats the segment file under /dev/shm
func (c *Checker) segmentCheck(busName string) (bool, int64, string) {
	info, err := os.Stat(filepath.Join("/dev/shm", busName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, "segment not found"
		}
		return false, 0, fmt.Sprintf("stat failed: %v", err)
	}
	return true, info.Size(), ""
}

// tcpPing attempts to establish a TCP connection to the broker
func (c *Checker) tcpPing(addr string) (bool, string) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "1883")
	}

	conn, err := net.DialTimeout("tcp", addr, c.timeout)
	if err != nil {
		return false, fmt.Sprintf("TCP connection failed: %v", err)
	}
	_ = conn.Close()
	return true, ""
}
