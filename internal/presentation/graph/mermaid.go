package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/tsw/pkg/domain"
)

// removedNode is the terminal node reached by DELETE.
const removedNode = "removed"

// Overlay highlights runtime data on the diagram.
type Overlay struct {
	Current domain.State
	Pending *domain.Action
}

// actionTarget is the state an action script drives an instance to on success.
func actionTarget(from domain.State, a domain.Action) (string, bool) {
	switch a {
	case domain.ActionSetUp:
		if from == domain.StateDefined {
			return string(domain.StateValid), true
		}
		return string(domain.StateIdle), true
	case domain.ActionBootUp:
		return string(domain.StateBootingUp), true
	case domain.ActionGoToModMenu:
		return string(domain.StateModMenu), true
	case domain.ActionSetLoadedMods:
		return string(domain.StateChangingModState), true
	case domain.ActionCreateWorld:
		return string(domain.StateWorldSizePrompt), true
	case domain.ActionRunServer:
		return string(domain.StateMaxPlayersPrompt), true
	case domain.ActionRecreate:
		return string(domain.StateDefined), true
	case domain.ActionDelete:
		return removedNode, true
	}
	return "", false
}

func isStop(a domain.Action) bool {
	return a == domain.ActionShutDown || a == domain.ActionShutDownNoSave || a == domain.ActionTerminate
}

// GenerateMermaid renders the instance state machine as a Mermaid flowchart.
// Solid edges are actions, dotted edges are output lines recognized by the
// interpreter. Stop actions are drawn once from the subgraph of active states.
// It applies overlay styles if provided.
func GenerateMermaid(overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var active []domain.State
	for _, s := range domain.AllStates() {
		if s.IsActive() {
			active = append(active, s)
			continue
		}
		fmt.Fprintf(&sb, "    %s([\"%s\"])\n", s, s)
	}
	sb.WriteString("    subgraph active [\"live process\"]\n")
	for _, s := range active {
		fmt.Fprintf(&sb, "        %s[\"%s\"]\n", s, s)
	}
	sb.WriteString("    end\n")
	fmt.Fprintf(&sb, "    %s((\"%s\"))\n", removedNode, removedNode)

	for _, s := range domain.AllStates() {
		for _, a := range s.ApplicableActions() {
			if isStop(a) {
				continue
			}
			if to, ok := actionTarget(s, a); ok {
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", s, a, to)
			}
		}
	}
	fmt.Fprintf(&sb, "    active -- \"%s / %s / %s\" --> %s\n",
		domain.ActionShutDown, domain.ActionShutDownNoSave, domain.ActionTerminate, domain.StateIdle)

	for _, r := range domain.TransitionRules {
		label := strings.TrimSpace(strings.ReplaceAll(r.Prefix, "\"", "'"))
		for _, from := range r.Sources {
			if from == r.Target {
				continue
			}
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", from, label, r.Target)
		}
	}

	if overlay != nil && overlay.Current != "" {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef next fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		fmt.Fprintf(&sb, "    class %s current;\n", overlay.Current)
		if overlay.Pending != nil {
			if to, ok := actionTarget(overlay.Current, *overlay.Pending); ok {
				fmt.Fprintf(&sb, "    class %s next;\n", to)
			} else if isStop(*overlay.Pending) {
				fmt.Fprintf(&sb, "    class %s next;\n", domain.StateIdle)
			}
		}
	}

	return sb.String()
}
