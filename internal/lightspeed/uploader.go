package lightspeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/retry"
)

var ErrUploadFailed = errors.New("lightspeed upload failed")

// Importer is the part of Client the uploader drives.
type Importer interface {
	Import(ctx context.Context, file []byte) (*Result, error)
	ImportResult(ctx context.Context, jobID int) (*Result, error)
}

// Logger receives progress lines for the purchase order log.
type Logger func(entry domain.LogEntry)

// Phase is where an upload stands.
type Phase int

const (
	PhaseSubmitting Phase = iota
	PhaseAwaitingJob
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhaseAwaitingJob:
		return "awaiting_job"
	case PhaseDone:
		return "done"
	default:
		return "failed"
	}
}

// UploadState is one step of the upload state machine. Once a job ID is known
// the file is never submitted again.
type UploadState struct {
	Phase   Phase
	JobID   int
	Attempt int
}

// Next returns the state after an attempt finished with res or err.
func (s UploadState) Next(res *Result, err error, maxAttempts int) UploadState {
	next := s
	next.Attempt++
	switch {
	case err == nil && res != nil && res.Completed:
		next.Phase = PhaseDone
		return next
	case s.Phase == PhaseSubmitting && err == nil && res != nil:
		if id, ok := res.JobID(); ok {
			next.Phase, next.JobID = PhaseAwaitingJob, id
		}
	}
	if next.Attempt >= maxAttempts {
		next.Phase = PhaseFailed
	}
	return next
}

// Uploader submits an import file and, once the bridge hands back a job ID,
// switches to polling that job. Both phases share one attempt budget.
type Uploader struct {
	importer Importer
	policy   retry.Policy
}

func NewUploader(importer Importer, maxAttempts int) *Uploader {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Uploader{importer: importer, policy: retry.Exponential(maxAttempts)}
}

// WithPolicy overrides the attempt budget and delay between attempts.
func (u *Uploader) WithPolicy(p retry.Policy) *Uploader {
	u.policy = p
	return u
}

// Upload returns the custom SKU to system ID map of a completed import.
func (u *Uploader) Upload(ctx context.Context, file []byte, logf Logger) (map[string]string, error) {
	if logf == nil {
		logf = func(domain.LogEntry) {}
	}

	state := UploadState{Phase: PhaseSubmitting}
	for {
		if state.Attempt > 0 {
			if err := retry.Sleep(ctx, u.policy.Delay(state.Attempt)); err != nil {
				return nil, err
			}
		}

		var (
			res *Result
			err error
		)
		switch state.Phase {
		case PhaseSubmitting:
			logf(domain.InfoLog(fmt.Sprintf("Uploading products to Lightspeed (Attempt: %d).", state.Attempt+1)))
			res, err = u.importer.Import(ctx, file)
			switch {
			case err != nil:
				logf(domain.ErrorLog("Failed to upload. " + err.Error()))
			case !res.Completed:
				logf(domain.ErrorLog("Failed to complete upload. Logs: " + formatLogs(res.Logs)))
			}
		case PhaseAwaitingJob:
			logf(domain.InfoLog("Retrieving Lightspeed import results."))
			res, err = u.importer.ImportResult(ctx, state.JobID)
			switch {
			case err != nil:
				logf(domain.ErrorLog("Failed to retrieve upload results. " + err.Error()))
			case !res.Completed:
				logf(domain.ErrorLog("Failed to retrieve upload results. Logs: " + formatLogs(res.Logs)))
			}
		}

		state = state.Next(res, err, u.policy.Attempts)
		switch state.Phase {
		case PhaseDone:
			logf(domain.InfoLog("Product uploaded successfully (LS)."))
			return res.SystemIDs, nil
		case PhaseFailed:
			return nil, ErrUploadFailed
		}
	}
}

func formatLogs(logs []string) string {
	return "[" + strings.Join(logs, ", ") + "]"
}
