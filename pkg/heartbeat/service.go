package heartbeat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/innomightlabs/krishna/pkg/logger"
)

// okSentinel in a heartbeat response means nothing needs attention.
const okSentinel = "HEARTBEAT_OK"

// cronPollInterval is how often a cron schedule is checked for dueness.
const cronPollInterval = time.Minute

// Service periodically prompts the agent to review outstanding work.
// It fires either on a fixed interval or on a cron schedule, whichever
// is configured.
type Service struct {
	workspace   string
	interval    time.Duration
	cronExpr    string
	enabled     bool
	gron        *gronx.Gronx
	mu          sync.RWMutex
	onHeartbeat func(prompt string) (string, error)
	deliver     func(response string)
	started     bool
	stopChan    chan struct{}
}

// NewService builds a heartbeat service. A non-empty cronExpr takes
// precedence over the interval and must be a valid cron expression.
func NewService(workspace string, interval time.Duration, cronExpr string, enabled bool) (*Service, error) {
	gron := gronx.New()
	if cronExpr != "" && !gron.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid cron expression %q", cronExpr)
	}
	if cronExpr == "" && interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Service{
		workspace: workspace,
		interval:  interval,
		cronExpr:  cronExpr,
		enabled:   enabled,
		gron:      gron,
		stopChan:  make(chan struct{}),
	}, nil
}

// SetOnHeartbeat installs the callback that runs the heartbeat prompt
// through an agent runtime.
func (s *Service) SetOnHeartbeat(fn func(prompt string) (string, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHeartbeat = fn
}

// SetDelivery installs the sink for responses that need attention.
func (s *Service) SetDelivery(fn func(response string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliver = fn
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return fmt.Errorf("heartbeat service is disabled")
	}
	if s.started || !s.running() {
		return nil
	}
	s.started = true

	go s.runLoop()
	logger.InfoCF("heartbeat", "Heartbeat service started",
		map[string]interface{}{"interval": s.interval.String(), "cron": s.cronExpr})
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running() {
		return
	}
	close(s.stopChan)
}

func (s *Service) running() bool {
	select {
	case <-s.stopChan:
		return false
	default:
		return true
	}
}

func (s *Service) runLoop() {
	tick := s.interval
	if s.cronExpr != "" {
		tick = cronPollInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if s.cronExpr != "" {
				due, err := s.gron.IsDue(s.cronExpr, time.Now())
				if err != nil || !due {
					continue
				}
			}
			s.checkHeartbeat()
		}
	}
}

func (s *Service) checkHeartbeat() {
	s.mu.RLock()
	enabled := s.enabled
	onHeartbeat := s.onHeartbeat
	deliver := s.deliver
	s.mu.RUnlock()

	if !enabled || onHeartbeat == nil {
		return
	}

	response, err := onHeartbeat(s.buildPrompt())
	if err != nil {
		logger.ErrorCF("heartbeat", "Heartbeat callback error",
			map[string]interface{}{"error": err.Error()})
		s.log(fmt.Sprintf("Heartbeat error: %v", err))
		return
	}

	if strings.Contains(response, okSentinel) {
		logger.DebugC("heartbeat", "Heartbeat OK, no action needed")
		return
	}

	if deliver != nil {
		deliver(response)
	}
	s.log("Heartbeat response delivered")
}

func (s *Service) buildPrompt() string {
	notesFile := filepath.Join(s.workspace, "memory", "HEARTBEAT.md")
	var notes string
	if data, err := os.ReadFile(notesFile); err == nil {
		notes = string(data)
	}

	now := time.Now().Format("2006-01-02 15:04")
	return fmt.Sprintf(`# Heartbeat Check

Current time: %s

Check if there are any tasks I should be aware of or actions I should take.
Review the memory file for any important updates or changes.
Be proactive in identifying potential issues or improvements.

If there is nothing to report, respond with exactly: %s

%s
`, now, okSentinel, notes)
}

func (s *Service) log(message string) {
	logFile := filepath.Join(s.workspace, "memory", "heartbeat.log")
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] %s\n", timestamp, message)
}
