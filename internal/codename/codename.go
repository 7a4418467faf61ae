// Package codename produces short human-memorable labels for sessions.
// Codenames are collision-avoided against the set currently in use, not
// globally unique.
package codename

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// maxAttempts bounds how many fresh word pairs are tried before the
// generator degrades to salted and then timestamp-suffixed names.
const maxAttempts = 12

var adjectives = []string{
	"amber", "bold", "brisk", "calm", "cedar", "civic", "coral", "crisp",
	"dapper", "dusty", "eager", "fable", "frost", "gentle", "hazel",
	"ivory", "jolly", "keen", "lively", "lunar", "mellow", "mossy",
	"nimble", "noble", "opal", "plucky", "quiet", "rapid", "rustic",
	"silver", "snappy", "solar", "spry", "stout", "sunny", "swift",
	"tidal", "velvet", "vivid", "witty",
}

var nouns = []string{
	"anchor", "badger", "beacon", "canyon", "comet", "condor", "cricket",
	"dolphin", "ember", "falcon", "fjord", "gecko", "glacier", "harbor",
	"heron", "lagoon", "lantern", "lemur", "maple", "marmot", "meadow",
	"mesa", "nebula", "otter", "pebble", "pelican", "prairie", "quartz",
	"raven", "reef", "saddle", "sparrow", "summit", "thicket", "tundra",
	"walrus", "willow", "wren", "yonder", "zephyr",
}

// Generator builds collision-avoided codenames. The zero value is not
// usable; construct with New.
type Generator struct {
	words func() string
	salt  func() string
	now   func() time.Time
}

// New returns a Generator backed by the built-in word pools.
func New() *Generator {
	return &Generator{
		words: randomPair,
		salt:  randomSalt,
		now:   time.Now,
	}
}

// Generate returns a codename not present in existing. It tries fresh
// word pairs first, then a salted pair, then a timestamp-suffixed pair;
// the last rung always terminates.
func (g *Generator) Generate(existing map[string]bool) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		candidate, err := g.candidate()
		if err != nil {
			return "", err
		}
		if !existing[candidate] {
			return candidate, nil
		}
	}

	base, err := g.candidate()
	if err != nil {
		return "", err
	}
	salted := base + "-" + g.salt()
	if !existing[salted] {
		return salted, nil
	}

	base, err = g.candidate()
	if err != nil {
		return "", err
	}
	ts := strconv.FormatInt(g.now().UnixMilli(), 36)
	return base + "-" + ts[len(ts)-2:], nil
}

func (g *Generator) candidate() (string, error) {
	candidate := g.words()
	if candidate == "" {
		return "", fmt.Errorf("codename word generator returned an empty string")
	}
	return strings.ToLower(candidate), nil
}

func randomPair() string {
	return adjectives[rand.Intn(len(adjectives))] + "-" + nouns[rand.Intn(len(nouns))]
}

// randomSalt returns two base-36 digits, zero-padded.
func randomSalt() string {
	s := strconv.FormatInt(int64(rand.Intn(36*36)), 36)
	if len(s) < 2 {
		s = "0" + s
	}
	return s
}
