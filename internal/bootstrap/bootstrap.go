// Package bootstrap recovers the active interview config for a candidate.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/recruiter/internal/interview"
	"github.com/MikeSquared-Agency/recruiter/internal/localstore"
)

// InfoKey is the state key the setup flow writes the interview config under.
const InfoKey = "interviewInfo"

// Resolve returns the config to run interviewID with. An active config is
// returned untouched. Otherwise the persisted config is adopted if it belongs
// to interviewID; if it is absent, unreadable or for another interview the
// entry is cleared, the candidate is sent back to setup and
// ErrConfigMissingOrMismatched is returned.
func Resolve(ctx context.Context, active *interview.Config, interviewID string, st localstore.Store, nav interview.Navigator, logger *slog.Logger) (*interview.Config, error) {
	if active != nil {
		return active, nil
	}

	reason := "absent"
	raw, found, err := st.Get(ctx, InfoKey)
	switch {
	case err != nil:
		reason = "unreadable"
		logger.Error("failed to read interview info", "interview_id", interviewID, "error", err)
	case found:
		var cfg interview.Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			reason = "malformed"
			logger.Warn("stored interview info is malformed", "interview_id", interviewID, "error", err)
			break
		}
		if cfg.InterviewID == interviewID {
			return &cfg, nil
		}
		reason = "mismatched"
		logger.Info("stored interview info belongs to another interview",
			"interview_id", interviewID,
			"stored_interview_id", cfg.InterviewID,
		)
	}

	if err := st.Delete(ctx, InfoKey); err != nil {
		logger.Warn("failed to clear interview info", "interview_id", interviewID, "error", err)
	}
	nav.Replace(interview.SetupRoute(interviewID))
	return nil, fmt.Errorf("%w: %s", interview.ErrConfigMissingOrMismatched, reason)
}

// Save writes cfg under InfoKey.
func Save(ctx context.Context, st localstore.Store, cfg *interview.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal interview info: %w", err)
	}
	if err := st.Set(ctx, InfoKey, data); err != nil {
		return fmt.Errorf("store interview info: %w", err)
	}
	return nil
}

// Clear removes the persisted config once the interview is finished.
func Clear(ctx context.Context, st localstore.Store) error {
	return st.Delete(ctx, InfoKey)
}
