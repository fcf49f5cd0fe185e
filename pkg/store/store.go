// Package store defines persistence for interview sessions and their
// transcripts.
//
// A Store records two kinds of data:
//
//   - interview records: one row per interview with its configuration and
//     lifecycle timestamps
//   - transcript entries: the time-ordered exchange of candidate utterances
//     and interviewer responses within an interview
//
// The interfaces are public so that external packages can supply alternative
// backends (Postgres, in-memory, …) without depending on intervox internals.
//
// Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an interview ID does not exist in the store.
var ErrNotFound = errors.New("store: interview not found")

// Role identifies who produced a transcript entry.
type Role string

const (
	// RoleCandidate marks an utterance spoken by the interviewee.
	RoleCandidate Role = "candidate"
	// RoleInterviewer marks a response generated by the AI interviewer.
	RoleInterviewer Role = "interviewer"
	// RoleSystem marks system-injected content such as wrap-up prompts.
	RoleSystem Role = "system"
)

// Interview is the persistent record of a single interview session.
type Interview struct {
	// ID is the unique identifier for the interview (e.g., a UUID).
	ID string

	// Position is the role being interviewed for (e.g., "backend engineer").
	Position string

	// Language is the BCP-47 language tag used for the session.
	Language string

	// StartedAt is when the session connected.
	StartedAt time.Time

	// EndedAt is when the session disconnected. Zero while the interview is live.
	EndedAt time.Time

	// QuestionsAsked counts interviewer turns that ended with a question.
	QuestionsAsked int
}

// Entry is a single transcript line within an interview.
type Entry struct {
	// Role identifies the speaker.
	Role Role

	// Content is the text of the utterance or response.
	Content string

	// Turn is the pipeline turn that produced this entry.
	Turn uint64

	// Timestamp is when the entry was recorded.
	Timestamp time.Time
}

// Store persists interviews and their transcripts.
type Store interface {
	// CreateInterview records a new interview. The EndedAt and QuestionsAsked
	// fields of iv are ignored.
	CreateInterview(ctx context.Context, iv Interview) error

	// FinishInterview marks the interview as ended and records the final
	// question count. Returns [ErrNotFound] if id is unknown.
	FinishInterview(ctx context.Context, id string, endedAt time.Time, questionsAsked int) error

	// AppendEntry appends a transcript entry to the interview's log.
	AppendEntry(ctx context.Context, interviewID string, e Entry) error

	// History returns the most recent limit entries for interviewID in
	// chronological order (oldest first). A limit of 0 returns all entries.
	History(ctx context.Context, interviewID string, limit int) ([]Entry, error)

	// Interview returns the interview record for id, or [ErrNotFound].
	Interview(ctx context.Context, id string) (Interview, error)

	// Close releases any resources held by the store.
	Close()
}
