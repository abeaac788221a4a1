package rollup

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

// Category names one of the four journal prompts.
type Category string

const (
	Success    Category = "success"
	Delight    Category = "delight"
	Learning   Category = "learning"
	Compliment Category = "compliment"
)

// Categories lists the prompts in display order.
var Categories = []Category{Success, Delight, Learning, Compliment}

// Content is the plaintext of an entry.
type Content struct {
	Success    string `json:"success"`
	Delight    string `json:"delight"`
	Learning   string `json:"learning"`
	Compliment string `json:"compliment"`
}

// Field returns the text for c.
func (c Content) Field(cat Category) string {
	switch cat {
	case Success:
		return c.Success
	case Delight:
		return c.Delight
	case Learning:
		return c.Learning
	case Compliment:
		return c.Compliment
	default:
		return ""
	}
}

// IsEmpty reports whether every field is blank after trimming.
func (c Content) IsEmpty() bool {
	for _, cat := range Categories {
		if strings.TrimSpace(c.Field(cat)) != "" {
			return false
		}
	}
	return true
}

// Entry is a decrypted journal entry.
type Entry struct {
	Date      string  `json:"date"`
	Content   Content `json:"content"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

// SealContent encodes c as JSON and seals it under key.
func SealContent(c Content, key *keyring.Key) (keyring.Sealed, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return keyring.Sealed{}, fmt.Errorf("rollup: failed to encode content: %w", err)
	}
	return keyring.SealString(string(b), key)
}

// OpenEntry decrypts a stored entry. A payload that decrypts but is not
// valid JSON is reported as keyring.ErrDecryptionFailed.
func OpenEntry(e *store.Entry, key *keyring.Key) (*Entry, error) {
	plaintext, err := keyring.OpenString(e.Sealed(), key)
	if err != nil {
		return nil, err
	}

	var c Content
	if err := json.Unmarshal([]byte(plaintext), &c); err != nil {
		return nil, fmt.Errorf("%w: entry %s: malformed payload", keyring.ErrDecryptionFailed, e.ID)
	}
	return &Entry{Date: e.Date, Content: c, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}, nil
}
