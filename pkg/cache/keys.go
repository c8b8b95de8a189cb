package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Prefix groups keys by the kind of data they hold, so a tag invalidation
// or pattern sweep can target one category without touching the rest.
type Prefix string

const (
	PrefixHeatmap     Prefix = "heatmap"
	PrefixCalendar    Prefix = "calendar"
	PrefixAssignments Prefix = "assignments"
	PrefixPersons     Prefix = "persons"
	PrefixRotations   Prefix = "rotations"
	PrefixBlocks      Prefix = "blocks"
	PrefixCoverage    Prefix = "coverage"
	PrefixWorkload    Prefix = "workload"
	PrefixSchedule    Prefix = "schedule"
	PrefixGeneral     Prefix = "service"
)

// maxKeyLength is the point past which a deterministic key is collapsed to
// a short hash, so a key built from a long argument list stays usable as
// a Redis key and a log field.
const maxKeyLength = 200

// BuildKey derives a deterministic cache key from a prefix, an operation
// name, and its argument representation. Keyword-style arguments should be
// passed as "name=value" so the key stays stable regardless of call-site
// ordering; BuildKey sorts everything after the first two parts.
func BuildKey(prefix Prefix, operation string, args ...string) string {
	sorted := append([]string{}, args...)
	sort.Strings(sorted)

	parts := append([]string{string(prefix), operation}, sorted...)
	key := strings.Join(parts, ":")
	if len(key) <= maxKeyLength {
		return key
	}

	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%s:%s", prefix, operation, hex.EncodeToString(sum[:])[:12])
}

// TagKey derives the key used to hold a tag's reverse index, i.e. the set
// of cache keys invalidated together when the tag is invalidated.
func TagKey(tag string) string {
	return "tag:" + tag
}
