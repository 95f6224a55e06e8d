package domain

import "strings"

const roomPrefix = "job_"

// Role is a user's relationship to a job's chat.
type Role string

const (
	RolePoster Role = "poster"
	RoleWorker Role = "worker"
)

// JobParticipants is the read-only projection of a job consumed by the
// access policy. A job without an assigned worker has no valid second
// participant.
type JobParticipants struct {
	JobID    string
	PosterID string
	WorkerID string
	Status   string
}

// RoomID returns the chat room id for a job.
func RoomID(jobID string) string {
	return roomPrefix + jobID
}

// JobIDFromRoom extracts the job id from a room id. The second return
// is false if the room id is not a job room.
func JobIDFromRoom(roomID string) (string, bool) {
	if !strings.HasPrefix(roomID, roomPrefix) {
		return "", false
	}
	return strings.TrimPrefix(roomID, roomPrefix), true
}

// User is the minimal directory view of a marketplace user that the
// chat core needs.
type User struct {
	ID          string
	DisplayName string
	IsVerified  bool
}
