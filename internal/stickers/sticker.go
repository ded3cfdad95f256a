package stickers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.jetify.com/typeid/v2"
)

// CollectionKey is the store key holding the sticker collection.
const CollectionKey = "stickers"

// LegacyCollectionKey is where the first app release kept its stickers as a
// bare JSON array. It is read only while CollectionKey does not exist and is
// left in place after the first append copies it forward.
const LegacyCollectionKey = "myStickers"

// CollectionVersion is the envelope version written by this package. A bare
// JSON array reads as version 0.
const CollectionVersion = 1

// IDPrefix is the TypeID prefix of sticker ids.
const IDPrefix = "stk"

var (
	ErrCorruptCollection     = errors.New("stickers: stored collection is corrupt")
	ErrUnsupportedCollection = errors.New("stickers: stored collection version is newer than supported")
	errNotACollection        = errors.New("not an object or array")
)

// Sticker is one produced sticker. Records are immutable once appended.
type Sticker struct {
	ID            string    `json:"id"`
	ImageLocation string    `json:"imageUri"`
	HasWatermark  bool      `json:"hasWatermark"`
	CreatedAt     time.Time `json:"createdAt"`
}

// legacySticker is a record of the first app release, which named the image
// field "uri" and wrote ISO-8601 timestamps with milliseconds.
type legacySticker struct {
	ID           string    `json:"id"`
	URI          string    `json:"uri"`
	HasWatermark bool      `json:"hasWatermark"`
	CreatedAt    time.Time `json:"createdAt"`
}

type collection struct {
	Version  int       `json:"version"`
	Stickers []Sticker `json:"stickers"`
}

// NewID returns a K-sortable sticker id such as stk_01h455vb4pex5vsknk084sn02q.
func NewID() (string, error) {
	tid, err := typeid.Generate(IDPrefix)
	if err != nil {
		return "", fmt.Errorf("generate sticker id: %w", err)
	}
	return tid.String(), nil
}

// IsTypeID reports whether id is a sticker TypeID rather than a legacy
// timestamp id.
func IsTypeID(id string) bool {
	tid, err := typeid.Parse(id)
	return err == nil && tid.Prefix() == IDPrefix
}

func decodeCollection(raw string) (collection, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return collection{Version: CollectionVersion}, nil
	}

	switch trimmed[0] {
	case '[':
		var legacy []legacySticker
		if err := json.Unmarshal([]byte(trimmed), &legacy); err != nil {
			return collection{}, fmt.Errorf("%w: %v", ErrCorruptCollection, err)
		}
		items := make([]Sticker, 0, len(legacy))
		for _, rec := range legacy {
			items = append(items, Sticker{
				ID:            rec.ID,
				ImageLocation: rec.URI,
				HasWatermark:  rec.HasWatermark,
				CreatedAt:     rec.CreatedAt.UTC(),
			})
		}
		return collection{Version: 0, Stickers: items}, nil
	case '{':
		var env collection
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
			return collection{}, fmt.Errorf("%w: %v", ErrCorruptCollection, err)
		}
		if env.Version > CollectionVersion {
			return collection{}, fmt.Errorf("%w: version %d", ErrUnsupportedCollection, env.Version)
		}
		return env, nil
	default:
		return collection{}, fmt.Errorf("%w: %v", ErrCorruptCollection, errNotACollection)
	}
}

func encodeCollection(items []Sticker) (string, error) {
	if items == nil {
		items = []Sticker{}
	}
	payload, err := json.Marshal(collection{Version: CollectionVersion, Stickers: items})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
