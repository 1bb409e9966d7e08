package runtime_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/tsw/pkg/domain"
)

// fakeServer emulates a dedicated server behind a multiplexer: it appends its
// menus to the output file and removes the file when the process exits.
type fakeServer struct {
	mu       sync.Mutex
	alive    bool
	path     string
	screen   string
	worlds   []string
	mods     []string
	enabled  map[string]bool
	naming   string
	conflict bool
	mute     bool
	sent     []string
	started  int

	// stuck mod toggles never change the enabled flag.
	stuck bool
	// failing mods are never loaded, even when enabled.
	failing map[string]bool
}

func newFakeServer(worlds ...string) *fakeServer {
	return &fakeServer{
		worlds:  worlds,
		mods:    []string{"Mod1", "Mod2"},
		enabled: map[string]bool{},
	}
}

func (f *fakeServer) Start(ctx context.Context, session string, command []string, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = true
	f.started++
	f.path = outputPath
	f.screen = "world"
	f.write("Terraria Server v1.4.4.9\n" + f.worldMenu())
	return nil
}

func (f *fakeServer) SendText(ctx context.Context, session, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive {
		return &domain.ProcessError{Op: "send-keys", Session: session, Err: fmt.Errorf("no server running")}
	}
	f.sent = append(f.sent, text)
	if !f.mute {
		f.handle(text)
	}
	return nil
}

func (f *fakeServer) SendInterrupt(ctx context.Context, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exit()
	return nil
}

func (f *fakeServer) HasSession(ctx context.Context, session string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive, nil
}

func (f *fakeServer) Kill(ctx context.Context, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	return nil
}

func (f *fakeServer) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeServer) handle(text string) {
	switch f.screen {
	case "world":
		switch {
		case text == "m":
			f.screen = "mods"
			f.write("\n" + f.modMenu())
		case text == "n":
			f.screen = "size"
			f.write("\n1\t\tSmall\n2\t\tMedium\n3\t\tLarge\nChoose size: ")
		default:
			if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(f.worlds) {
				f.screen = "players"
				f.write("\nMax players (press enter for 8): ")
			}
		}
	case "mods":
		if text == "r" {
			f.screen = "world"
			var b strings.Builder
			b.WriteString("\nUnloading mods...\nFinding Mods...\nLoading: tModLoader v2024.1\n")
			for _, m := range f.mods {
				if f.enabled[m] && !f.failing[m] {
					fmt.Fprintf(&b, "Loading: %s v1.0\n", m)
				}
			}
			f.write(b.String() + f.worldMenu())
			return
		}
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(f.mods) && !f.stuck {
			name := f.mods[n-1]
			f.enabled[name] = !f.enabled[name]
		}
		f.write("\n" + f.modMenu())
	case "size":
		f.screen = "difficulty"
		f.write("\n1\t\tClassic\n2\t\tExpert\n3\t\tMaster\n4\t\tJourney\nChoose difficulty: ")
	case "difficulty":
		f.screen = "name"
		f.write("\nEnter world name: ")
	case "name":
		f.naming = text
		f.screen = "seed"
		f.write("\nEnter Seed (Leave Blank For Random): ")
	case "seed":
		f.worlds = append(f.worlds, f.naming)
		dir := filepath.Join(filepath.Dir(f.path), "worlds")
		_ = os.MkdirAll(dir, 0o755)
		_ = os.WriteFile(filepath.Join(dir, f.naming+".wld"), []byte("world"), 0o644)
		f.screen = "world"
		f.write("\nCreating world - Generating world terrain\n" + f.worldMenu())
	case "players":
		f.screen = "port"
		f.write("\nServer port (press enter for 7777): ")
	case "port":
		f.screen = "forward"
		f.write("\nAutomatically forward port? (y/n): ")
	case "forward":
		f.screen = "password"
		f.write("\nServer password (press enter for none): ")
	case "password":
		if f.conflict {
			f.screen = "conflict"
			f.write("\nTried to run two servers on the same PC\n")
			return
		}
		f.screen = "running"
		f.write("\nListening on port 7777\nType 'help' for a list of commands.\n\nServer started\n")
	case "running", "conflict":
		if text == "exit" || text == "exit-nosave" {
			f.write("Saving world data...\n")
			f.exit()
		}
	}
}

func (f *fakeServer) worldMenu() string {
	var b strings.Builder
	b.WriteString("\n")
	for i, w := range f.worlds {
		fmt.Fprintf(&b, "%d\t\t%s\n", i+1, w)
	}
	b.WriteString("n\t\tNew World\nd <number>\tDelete World\n\nChoose World: ")
	return b.String()
}

func (f *fakeServer) modMenu() string {
	var b strings.Builder
	for i, m := range f.mods {
		state := "disabled"
		if f.enabled[m] {
			state = "enabled"
		}
		fmt.Fprintf(&b, "%d\t\t%s (%s)\n", i+1, m, state)
	}
	b.WriteString("e\t\tEnable All\nd\t\tDisable All\nr\t\tReload and return to world menu\nType a command: ")
	return b.String()
}

// exit ends the process the way the wrapper command does: output file gone, session gone.
func (f *fakeServer) exit() {
	f.alive = false
	_ = os.Remove(f.path)
}

func (f *fakeServer) write(s string) {
	out, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer out.Close()
	_, _ = out.WriteString(s)
}

// provisioner accepts every instance unless invalid is set.
type provisioner struct {
	invalid bool
}

func (p *provisioner) Validate(ctx context.Context, inst *domain.Instance) error {
	if p.invalid {
		return &domain.DomainInvalidError{Reason: "unsupported platform"}
	}
	return nil
}

func (p *provisioner) Install(ctx context.Context, inst *domain.Instance) error {
	return nil
}

func (p *provisioner) Command(inst *domain.Instance) ([]string, error) {
	return []string{"./TerrariaServer"}, nil
}
