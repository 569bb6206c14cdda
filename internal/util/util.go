// Package util holds small helpers shared across the aqua packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Word lists for memorable agent names like "brave-falcon".
var adjectives = []string{
	"brave", "calm", "dark", "eager", "fair", "gentle", "happy", "idle",
	"jolly", "keen", "lively", "merry", "noble", "odd", "proud", "quick",
	"rapid", "silent", "tall", "unique", "vivid", "warm", "young", "zesty",
	"amber", "blue", "coral", "dusty", "emerald", "frosty", "golden", "hazy",
}

var nouns = []string{
	"falcon", "tiger", "eagle", "wolf", "bear", "lion", "hawk", "fox",
	"otter", "raven", "shark", "whale", "cobra", "crane", "drake", "elk",
	"finch", "gecko", "heron", "ibis", "jay", "koala", "lemur", "moose",
	"newt", "owl", "panda", "quail", "robin", "swan", "trout", "viper",
}

// ShortID returns an 8 hex character random identifier. Collisions are
// possible in principle; the database's primary keys catch them.
func ShortID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

// AgentName returns a memorable adjective-noun pair.
func AgentName() string {
	return pick(adjectives) + "-" + pick(nouns)
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		panic(fmt.Sprintf("failed to read random int: %v", err))
	}
	return words[n.Int64()]
}

// TimeAgo formats a timestamp as a compact relative string ("5m ago").
func TimeAgo(t time.Time) string {
	seconds := int(time.Since(t).Seconds())
	switch {
	case seconds < 0:
		return "in the future"
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh ago", seconds/3600)
	default:
		return fmt.Sprintf("%dd ago", seconds/86400)
	}
}

// Truncate shortens text to max runes, appending "..." when trimmed.
func Truncate(text string, max int) string {
	const suffix = "..."
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= len(suffix) {
		return string(runes[:max])
	}
	return string(runes[:max-len(suffix)]) + suffix
}

// ParseTags splits a comma-separated tag string, dropping empties.
func ParseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
