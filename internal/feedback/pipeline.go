// Package feedback turns a finished call's transcript into a stored
// interview result.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/recruiter/internal/bootstrap"
	"github.com/MikeSquared-Agency/recruiter/internal/export"
	"github.com/MikeSquared-Agency/recruiter/internal/hermes"
	"github.com/MikeSquared-Agency/recruiter/internal/interview"
	"github.com/MikeSquared-Agency/recruiter/internal/localstore"
	"github.com/MikeSquared-Agency/recruiter/internal/slack"
	"github.com/MikeSquared-Agency/recruiter/internal/store"
)

// PlaceholderRecommendation is recorded on every new result until a
// recruiter reviews it.
const PlaceholderRecommendation = "Not recommended"

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type ResultWriter interface {
	InsertResult(ctx context.Context, r store.Result) (uuid.UUID, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

type SummaryPoster interface {
	PostResultSummary(ctx context.Context, s slack.ResultSummary) error
}

// Input is what a finished call hands to the pipeline.
type Input struct {
	InterviewID string
	Transcript  string
	Config      *interview.Config
	// State holds the candidate's persisted interview config; it is cleared
	// on success.
	State localstore.Store
}

type Pipeline struct {
	generator Generator
	results   ResultWriter
	publisher Publisher
	poster    SummaryPoster
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline builds a pipeline. publisher and poster may be nil.
func NewPipeline(gen Generator, results ResultWriter, publisher Publisher, poster SummaryPoster, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		generator: gen,
		results:   results,
		publisher: publisher,
		poster:    poster,
		logger:    logger,
		now:       time.Now,
	}
}

// Run generates, parses and stores feedback for one finished call. On
// success the persisted config is cleared and the candidate is sent to the
// completion route. On failure the candidate sees a generic error, nothing
// is cleared and no navigation happens.
func (p *Pipeline) Run(ctx context.Context, in Input, ui interview.UI) error {
	stored, rec, err := p.run(ctx, in)
	if err != nil {
		p.logger.Error("feedback generation failed", "interview_id", in.InterviewID, "error", err)
		ui.Error("Failed to generate feedback")
		return err
	}

	ui.Success("Feedback generated successfully!")
	if in.State != nil {
		if err := bootstrap.Clear(ctx, in.State); err != nil {
			p.logger.Warn("failed to clear interview info", "interview_id", in.InterviewID, "error", err)
		}
	}
	p.announce(ctx, stored, in, rec)
	ui.Replace(interview.CompletedRoute(in.InterviewID))
	return nil
}

// run returns the result as it was written.
func (p *Pipeline) run(ctx context.Context, in Input) (store.Result, *Record, error) {
	cfg := in.Config
	if cfg == nil {
		return store.Result{}, nil, interview.ErrConfigMissingOrMismatched
	}

	p.logger.Info("generating feedback",
		"interview_id", in.InterviewID,
		"transcript_len", len(in.Transcript),
	)

	raw, err := p.generator.Generate(ctx, Request{
		Transcript:     in.Transcript,
		JobRole:        cfg.JobPosition,
		JobDescription: cfg.JobDescription,
	})
	if err != nil {
		return store.Result{}, nil, fmt.Errorf("generate: %w", err)
	}
	p.logger.Debug("raw feedback content", "interview_id", in.InterviewID, "content", raw)

	cleaned := Clean(raw)
	rec, err := Parse(cleaned)
	if err != nil {
		p.logger.Error("failed to parse feedback JSON",
			"interview_id", in.InterviewID,
			"error", err,
			"raw", cleaned,
		)
		return store.Result{}, nil, fmt.Errorf("%w: %w", interview.ErrParse, err)
	}

	result := store.Result{
		Fullname:               cfg.CandidateName,
		Email:                  cfg.UserEmail,
		InterviewID:            in.InterviewID,
		ConversationTranscript: rec.Raw(),
		Recommendations:        PlaceholderRecommendation,
		CompletedAt:            p.now().UTC(),
	}
	result.ID, err = p.results.InsertResult(ctx, result)
	if err != nil {
		return store.Result{}, nil, fmt.Errorf("%w: %w", interview.ErrPersistence, err)
	}

	p.logger.Info("feedback stored", "interview_id", in.InterviewID, "result_id", result.ID)
	return result, rec, nil
}

func (p *Pipeline) announce(ctx context.Context, stored store.Result, in Input, rec *Record) {
	score := ""
	if s, ok := export.Score(rec.Feedback.Rating); ok {
		score = strconv.Itoa(s)
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(hermes.SubjectResultStored, hermes.ResultStored{
			ResultID:       stored.ID.String(),
			InterviewID:    in.InterviewID,
			Candidate:      in.Config.CandidateName,
			Email:          in.Config.UserEmail,
			JobPosition:    in.Config.JobPosition,
			Score:          score,
			Recommendation: rec.Feedback.Recommendation,
			CompletedAt:    stored.CompletedAt.Format(time.RFC3339),
		}); err != nil {
			p.logger.Warn("failed to publish result stored", "interview_id", in.InterviewID, "error", err)
		}
	}

	if p.poster != nil {
		if err := p.poster.PostResultSummary(ctx, slack.ResultSummary{
			Candidate:      in.Config.CandidateName,
			Email:          in.Config.UserEmail,
			JobPosition:    in.Config.JobPosition,
			InterviewID:    in.InterviewID,
			Score:          score,
			Recommendation: rec.Feedback.Recommendation,
			Message:        rec.Feedback.RecommendationMessage,
		}); err != nil {
			p.logger.Warn("failed to post result summary", "interview_id", in.InterviewID, "error", err)
		}
	}
}
