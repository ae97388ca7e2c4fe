package models

import (
	"encoding/json"
	"time"
)

// Chapter is one ordered unit of course content.
type Chapter struct {
	ID           string `json:"id"`
	CourseID     string `json:"course_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Content      string `json:"content"`
	ChapterOrder int    `json:"chapter_order"`
}

// CourseBundle is the self-contained offline representation of a course,
// transferable between peers. A re-save fully replaces the prior entry and
// refreshes CachedAt.
type CourseBundle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Chapters    []Chapter `json:"chapters"`
	CachedAt    time.Time `json:"cached_at"`
}

// PendingOp is a queued operation recorded while offline, flushed to the
// record store by the sync manager once connectivity returns. Data is the
// operation's JSON body, kept verbatim for the offline_ops JSONB column.
type PendingOp struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}
