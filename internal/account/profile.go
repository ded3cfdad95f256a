package account

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ProfileKey     = "user"
	ProfileVersion = 1
)

type Profile struct {
	Version        int       `json:"version"`
	ID             string    `json:"id"`
	Phone          string    `json:"phone"`
	InitialCredits int       `json:"initialCredits"`
	CreatedAt      time.Time `json:"createdAt"`
}

type loginInput struct {
	Phone string `validate:"required,numeric,min=10,max=11"`
}

var validate = validator.New()

// NormalizePhone strips the separators people type between digit groups.
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

func decodeProfile(raw string) (Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.Version > ProfileVersion {
		return Profile{}, fmt.Errorf("profile version %d is newer than supported %d", p.Version, ProfileVersion)
	}
	return p, nil
}
