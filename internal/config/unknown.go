package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// suggestDistance bounds the edit distance of a "did you mean" hint.
const suggestDistance = 3

// knownKeysList holds every dotted key Config decodes, sorted so that ties
// in suggestion distance resolve the same way on every run.
var knownKeysList = tomlKeys(reflect.TypeFor[Config](), "")

// tomlKeys walks the toml tags of t. Nested structs become sections; every
// other field is a leaf key.
func tomlKeys(t reflect.Type, prefix string) []string {
	var keys []string

	for i := range t.NumField() {
		f := t.Field(i)

		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			continue
		}

		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, tomlKeys(f.Type, prefix+name+".")...)
			continue
		}

		keys = append(keys, prefix+name)
	}

	slices.Sort(keys)

	return keys
}

// checkUnknownKeys rejects every key the decoder skipped, with the nearest
// known key as a hint where one is close enough.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if hint := closestMatch(key.String(), knownKeysList); hint != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q, did you mean %q?", key.String(), hint))
		} else {
			errs = append(errs, fmt.Errorf("unknown config key %q", key.String()))
		}
	}

	return errors.Join(errs...)
}

func closestMatch(unknown string, known []string) string {
	best, bestDist := "", suggestDistance+1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// levenshtein is the byte-wise edit distance, computed over two rolling rows.
func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			sub := prev[j]
			if a[i] != b[j] {
				sub++
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, sub)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
