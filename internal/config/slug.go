package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidSlug   = errors.New("invalid slug")
	ErrDuplicateSlug = errors.New("duplicate slug")
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9_]+$`)
	slugReplacer = regexp.MustCompile(`[^a-z0-9]`)
)

// Slugify derives a slug from a display name: lower case, with every
// character outside a-z and 0-9 replaced by an underscore.
func Slugify(name string) string {
	return slugReplacer.ReplaceAllString(strings.ToLower(name), "_")
}

// ChannelSlug returns the explicit slug, lower-cased and validated, or the
// slug derived from name when slug is empty.
func ChannelSlug(name, slug string) (string, error) {
	if slug == "" {
		return Slugify(name), nil
	}
	slug = strings.ToLower(slug)
	if !slugPattern.MatchString(slug) {
		return "", fmt.Errorf("%w %q, only alphanumeric characters and underscores are allowed", ErrInvalidSlug, slug)
	}
	return slug, nil
}
