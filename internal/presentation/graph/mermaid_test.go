package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/tsw/internal/presentation/graph"
	"github.com/aretw0/tsw/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Idle States",
			contains: []string{
				`DEFINED(["DEFINED"])`,
				`BROKEN(["BROKEN"])`,
				`removed(("removed"))`,
			},
		},
		{
			name: "Active Subgraph",
			contains: []string{
				`subgraph active ["live process"]`,
				`        RUNNING["RUNNING"]`,
				`active -- "SHUT_DOWN / SHUT_DOWN_NO_SAVE / TERMINATE" --> IDLE`,
			},
		},
		{
			name: "Action Edges",
			contains: []string{
				`DEFINED -- "SET_UP" --> VALID`,
				`VALID -- "SET_UP" --> IDLE`,
				`IDLE -- "BOOT_UP" --> BOOTING_UP`,
				`BROKEN -- "RECREATE" --> DEFINED`,
				`INVALID -- "DELETE" --> removed`,
			},
			excludes: []string{
				`RUNNING -- "SHUT_DOWN"`,
			},
		},
		{
			name: "Output Edges",
			contains: []string{
				`BOOTING_UP -. "Choose World:" .-> WORLD_MENU`,
				`PASSWORD_PROMPT -. "Server started" .-> RUNNING`,
			},
			excludes: []string{
				`WORLD_MENU -. "Choose World:" .-> WORLD_MENU`,
			},
		},
		{
			name:    "Overlay",
			overlay: &graph.Overlay{Current: domain.StateIdle, Pending: domain.ActionBootUp.Ptr()},
			contains: []string{
				"class IDLE current;",
				"class BOOTING_UP next;",
			},
		},
		{
			name:    "Overlay Stop",
			overlay: &graph.Overlay{Current: domain.StateRunning, Pending: domain.ActionTerminate.Ptr()},
			contains: []string{
				"class RUNNING current;",
				"class IDLE next;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("GenerateMermaid() = \n%v\nUnwanted substring: %v", got, unwanted)
				}
			}
		})
	}
}
