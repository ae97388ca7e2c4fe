package models

import (
	"encoding/json"
	"fmt"
)

// PeerMessageType identifies a course-protocol message carried over a peer
// data channel.
type PeerMessageType string

const (
	PeerMessageCourses       PeerMessageType = "courses"
	PeerMessageRequestCourse PeerMessageType = "request_course"
	PeerMessageCourseData    PeerMessageType = "course_data"
)

// PeerMessage is the envelope exchanged over each peer data channel.
// Which fields are set depends on Type:
//
//	courses        -> Name, Courses
//	request_course -> CourseID
//	course_data    -> Course
type PeerMessage struct {
	Type     PeerMessageType `json:"type"`
	Name     string          `json:"name,omitempty"`
	Courses  []string        `json:"courses,omitempty"`
	CourseID string          `json:"courseId,omitempty"`
	Course   *CourseBundle   `json:"course,omitempty"`
}

// DecodePeerMessage parses one data-channel payload and validates the fields
// its type requires.
func DecodePeerMessage(data []byte) (PeerMessage, error) {
	var m PeerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid peer message: %w", err)
	}
	switch m.Type {
	case PeerMessageCourses:
		if m.Name == "" {
			return m, fmt.Errorf("courses message missing name")
		}
	case PeerMessageRequestCourse:
		if m.CourseID == "" {
			return m, fmt.Errorf("request_course message missing courseId")
		}
	case PeerMessageCourseData:
		if m.Course == nil {
			return m, fmt.Errorf("course_data message missing course")
		}
	default:
		return m, fmt.Errorf("unknown peer message type: %q", m.Type)
	}
	return m, nil
}

// Encode serializes the envelope for the data channel.
func (m PeerMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
