package interview

import "strings"

// Config is the interview configuration written by the setup flow and
// persisted under the interviewInfo key until feedback is stored.
type Config struct {
	InterviewID    string       `json:"interview_id"`
	CandidateName  string       `json:"candidate_name" validate:"required"`
	UserEmail      string       `json:"userEmail" validate:"omitempty,email"`
	JobPosition    string       `json:"jobPosition" validate:"required"`
	JobDescription string       `json:"jobDescription"`
	QuestionList   QuestionList `json:"questionList"`
}

// QuestionList wraps the generated questions the way the setup flow stores them.
type QuestionList struct {
	InterviewQuestions []Question `json:"interviewQuestions"`
}

type Question struct {
	Question string `json:"question"`
	Type     string `json:"type,omitempty"`
}

// Questions returns the ordered, non-empty question texts.
func (c *Config) Questions() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.QuestionList.InterviewQuestions))
	for _, q := range c.QuestionList.InterviewQuestions {
		if text := strings.TrimSpace(q.Question); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// Ready reports whether the config carries enough to start a call.
func (c *Config) Ready() bool {
	return c != nil && strings.TrimSpace(c.JobPosition) != ""
}

// SetupRoute is where candidates are sent when no usable config exists.
func SetupRoute(interviewID string) string {
	return "/interview/" + interviewID
}

// CompletedRoute is the landing route after feedback has been stored.
func CompletedRoute(interviewID string) string {
	return "/interview/" + interviewID + "/completed"
}

// Notifier surfaces transient, user-visible messages.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}

// Navigator replaces the candidate's current route.
type Navigator interface {
	Replace(route string)
}

// UI is everything the interview flow needs from the candidate-facing surface.
type UI interface {
	Notifier
	Navigator
}
