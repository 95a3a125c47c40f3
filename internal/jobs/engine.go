package jobs

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ianampudia11/mecom-sub000/internal/services"
)

// EngineJobs runs the two background loops the engine needs: the session
// timeout sweep and the follow-up poller. Both loops are idempotent per pass,
// so running a second replica against the same database is safe.
type EngineJobs struct {
	sessions  *services.SessionManager
	followups *services.FollowUpScheduler

	sessionTimeout time.Duration
	sweepInterval  time.Duration
	pollInterval   time.Duration
	followUpBatch  int
	stop           chan struct{}
	isRunning      bool
}

// NewEngineJobs creates the job runner with intervals from the environment:
// SESSION_TIMEOUT_MINUTES (default 30), SESSION_SWEEP_SECONDS (default 60),
// FOLLOWUP_POLL_SECONDS (default 30), FOLLOWUP_BATCH_SIZE (default 50).
func NewEngineJobs(sessions *services.SessionManager, followups *services.FollowUpScheduler) *EngineJobs {
	return &EngineJobs{
		sessions:       sessions,
		followups:      followups,
		sessionTimeout: time.Duration(envInt("SESSION_TIMEOUT_MINUTES", 30)) * time.Minute,
		sweepInterval:  time.Duration(envInt("SESSION_SWEEP_SECONDS", 60)) * time.Second,
		pollInterval:   time.Duration(envInt("FOLLOWUP_POLL_SECONDS", 30)) * time.Second,
		followUpBatch:  envInt("FOLLOWUP_BATCH_SIZE", 50),
		stop:           make(chan struct{}),
	}
}

// Start launches both loops.
func (e *EngineJobs) Start() {
	if e.isRunning {
		log.Println("Engine jobs already running")
		return
	}
	e.isRunning = true

	log.Printf("Starting engine jobs (timeout sweep every %s, follow-up poll every %s)...", e.sweepInterval, e.pollInterval)
	go e.runSessionSweep()
	go e.runFollowUpPoll()
}

// Stop halts both loops.
func (e *EngineJobs) Stop() {
	if !e.isRunning {
		return
	}
	e.isRunning = false
	close(e.stop)
	log.Println("Stopping engine jobs...")
}

func (e *EngineJobs) runSessionSweep() {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if _, err := e.sessions.ExpireStale(e.sessionTimeout); err != nil {
				log.Printf("⚠️ Session timeout sweep failed: %v", err)
			}
		}
	}
}

func (e *EngineJobs) runFollowUpPoll() {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if _, err := e.followups.ProcessDue(context.Background(), e.followUpBatch); err != nil {
				log.Printf("⚠️ Follow-up poll failed: %v", err)
			}
		}
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		log.Printf("⚠️ Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return value
}
