// Package capability defines the narrow external contracts the engine
// depends on. Concrete implementations are injected at wiring time; tests
// inject fakes.
package capability

import (
	"context"
	"log"
	"net/http"
	"time"
)

// HTTPDoer is the injectable outbound transport. Every call site builds a
// request with an explicit per-call deadline via context.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns an http.Client with the given overall timeout.
// Per-upstream timeouts: 30s AA, 15s BBPS/GSP, 10s OAuth.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// SmsSender is the one-method delivery contract. Vendor integrations live
// outside the engine.
type SmsSender interface {
	Send(ctx context.Context, phone, message string) error
}

// LogSmsSender writes messages to the process log instead of a vendor.
// Used in development and as the degraded-mode delivery path.
type LogSmsSender struct {
	logger *log.Logger
}

// NewLogSmsSender creates the logging sender.
func NewLogSmsSender() *LogSmsSender {
	return &LogSmsSender{logger: log.New(log.Writer(), "[SMS] ", log.LstdFlags)}
}

// Send logs the message. Phone numbers are masked to their last 4 digits.
func (s *LogSmsSender) Send(ctx context.Context, phone, message string) error {
	masked := phone
	if len(phone) > 4 {
		masked = "******" + phone[len(phone)-4:]
	}
	s.logger.Printf("📱 to=%s msg=%q", masked, message)
	return nil
}
