package domain

import (
	"time"

	"github.com/google/uuid"
)

// World sizes as labelled in the world creation menu.
const (
	WorldSizeSmall  = "Small"
	WorldSizeMedium = "Medium"
	WorldSizeLarge  = "Large"
)

// World difficulties as labelled in the world creation menu.
const (
	DifficultyClassic = "Classic"
	DifficultyExpert  = "Expert"
	DifficultyMaster  = "Master"
	DifficultyJourney = "Journey"
)

// World is a game world an instance can create and serve.
// Instances refer to it by WorldID.
type World struct {
	ID         string    `json:"id" db:"id"`
	HostID     string    `json:"host_id" db:"host_id"`
	Name       string    `json:"name" db:"name"`
	Size       string    `json:"size" db:"size"`
	Difficulty string    `json:"difficulty" db:"difficulty"`
	Seed       string    `json:"seed,omitempty" db:"seed"`
	Created    bool      `json:"created" db:"created"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// NewWorld describes a world that has not been generated yet.
func NewWorld(hostID, name, size, difficulty string) *World {
	return &World{
		ID:         uuid.NewString(),
		HostID:     hostID,
		Name:       name,
		Size:       size,
		Difficulty: difficulty,
		UpdatedAt:  time.Now().UTC(),
	}
}

// FileName is the file the server writes the world to.
func (w *World) FileName() string {
	return w.Name + ".wld"
}
