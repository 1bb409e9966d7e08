package interpreter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/tsw/pkg/domain"
)

var (
	optionPattern = regexp.MustCompile(`^(\d+)\t\t(.+)$`)

	// The name may contain spaces and ends at the last " v<version>".
	modPattern = regexp.MustCompile(`^Loading: (.+?) v\S*$`)
)

// modsClearedLines reset the loaded mod set when printed.
var modsClearedLines = []string{
	"Unloading mods...",
	"Finding Mods...",
}

// loaderNames are printed by the mod loader about itself.
var loaderNames = map[string]bool{
	"ModLoader":  true,
	"tModLoader": true,
}

// rulesByLength indexes the transition rules by prefix length so a line is
// compared only when it has just grown to a candidate length.
var rulesByLength = func() map[int][]domain.TransitionRule {
	m := make(map[int][]domain.TransitionRule)
	for _, r := range domain.TransitionRules {
		m[len(r.Prefix)] = append(m[len(r.Prefix)], r)
	}
	return m
}()

type effectKind int

const (
	effectClearMods effectKind = iota
	effectAddMod
	effectOption
)

// effect is a parsed line waiting to be applied to the instance.
type effect struct {
	kind  effectKind
	id    int
	value string
}

// parseLine classifies a complete output line. Unrecognized lines yield false.
func parseLine(line string) (effect, bool) {
	trimmed := strings.TrimSpace(line)
	for _, l := range modsClearedLines {
		if strings.HasPrefix(trimmed, l) {
			return effect{kind: effectClearMods}, true
		}
	}

	if m := modPattern.FindStringSubmatch(trimmed); m != nil {
		if loaderNames[m[1]] {
			return effect{}, false
		}
		return effect{kind: effectAddMod, value: m[1]}, true
	}

	if m := optionPattern.FindStringSubmatch(strings.TrimRight(line, " ")); m != nil {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return effect{}, false
		}
		return effect{kind: effectOption, id: id, value: m[2]}, true
	}
	return effect{}, false
}
