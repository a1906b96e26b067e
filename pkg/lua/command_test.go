package lua

import (
	"errors"
	"strings"
	"testing"

	"github.com/siohaza/nightcup/internal/competition"
)

type fakeController struct {
	calls    []string
	fail     map[string]error
	chat     []string
	settings []competition.Setting
	reloads  int
}

func newFakeController() *fakeController {
	return &fakeController{
		fail: make(map[string]error),
		settings: []competition.Setting{
			{Name: "nc_ta_length", Description: "Length of TA phase", Value: competition.IntValue(2700)},
		},
	}
}

func (f *fakeController) record(name, arg string) error {
	f.calls = append(f.calls, name+" "+arg)
	return f.fail[name]
}

func (f *fakeController) Start(admin string) error          { return f.record("Start", admin) }
func (f *fakeController) Stop(by string) error              { return f.record("Stop", by) }
func (f *fakeController) AddQualified(login string) error   { return f.record("AddQualified", login) }
func (f *fakeController) RemoveQualified(login string) error { return f.record("RemoveQualified", login) }
func (f *fakeController) Whitelist(login string) error      { return f.record("Whitelist", login) }
func (f *fakeController) Unwhitelist(login string) error    { return f.record("Unwhitelist", login) }
func (f *fakeController) RemoveStanding(login string) error { return f.record("RemoveStanding", login) }

func (f *fakeController) UpdateSetting(name, value string) error {
	if err := f.record("UpdateSetting", name+"="+value); err != nil {
		return err
	}
	for i := range f.settings {
		if f.settings[i].Name == name {
			v, err := competition.ParseValue(f.settings[i].Value.Kind, value)
			if err != nil {
				return err
			}
			f.settings[i].Value = v
		}
	}
	return nil
}

func (f *fakeController) Settings() []competition.Setting { return f.settings }
func (f *fakeController) Announce(message string)         { f.chat = append(f.chat, "all: "+message) }

func (f *fakeController) Status() competition.Status {
	return competition.Status{Phase: "knockout", Round: 2, Qualified: []string{"a", "b", "c"}, RequiredKOs: 1}
}

func (f *fakeController) SendChat(message string, recipients ...string) {
	f.chat = append(f.chat, strings.Join(recipients, ",")+": "+message)
}

func (f *fakeController) StartMatch(entrants []string) error {
	return f.record("StartMatch", strings.Join(entrants, ","))
}

func (f *fakeController) Ban(login string, index int) (string, error) {
	if err := f.record("Ban", login); err != nil {
		return "", err
	}
	return "Map " + string(rune('0'+index)), nil
}

func (f *fakeController) ReloadCommands() error {
	f.reloads++
	return nil
}

func loadScripts(t *testing.T) (*CommandManager, *fakeController) {
	t.Helper()
	ctrl := newFakeController()
	api := NewAPI(ctrl)
	cm := NewCommandManager(nil)
	api.SetCommandManager(cm)
	if err := cm.LoadCommands("../../scripts/commands", api); err != nil {
		t.Fatalf("LoadCommands returned error: %v", err)
	}
	return cm, ctrl
}

var admin = Caller{Login: "admin", Nickname: "Admin", Admin: true}

func TestNightcupCommands(t *testing.T) {
	cm, ctrl := loadScripts(t)

	tests := []struct {
		args []string
		call string
	}{
		{[]string{"start"}, "Start admin"},
		{[]string{"aq", "racer"}, "AddQualified racer"},
		{[]string{"removequalified", "racer"}, "RemoveQualified racer"},
		{[]string{"wl", "pro"}, "Whitelist pro"},
		{[]string{"unwl", "pro"}, "Unwhitelist pro"},
		{[]string{"removestanding", "ghost"}, "RemoveStanding ghost"},
		{[]string{"stop"}, "Stop admin"},
	}

	for _, tt := range tests {
		ctrl.calls = nil
		if _, err := cm.Execute(admin, "nc", tt.args); err != nil {
			t.Fatalf("//nc %v returned error: %v", tt.args, err)
		}
		if len(ctrl.calls) != 1 || ctrl.calls[0] != tt.call {
			t.Fatalf("//nc %v made calls %v, want %q", tt.args, ctrl.calls, tt.call)
		}
	}
}

func TestNightcupCommandReportsErrors(t *testing.T) {
	cm, ctrl := loadScripts(t)
	ctrl.fail["AddQualified"] = errors.New("unknown player")

	reply, err := cm.Execute(admin, "nc", []string{"aq", "x", "y"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if reply != "x: unknown player, y: unknown player" {
		t.Fatalf("unexpected reply %q", reply)
	}

	ctrl.fail["Start"] = errors.New("a nightcup is currently in progress")
	reply, _ = cm.Execute(admin, "nc", []string{"start"})
	if reply != "a nightcup is currently in progress" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestNightcupSettingsAndStatus(t *testing.T) {
	cm, ctrl := loadScripts(t)

	reply, err := cm.Execute(admin, "nc", []string{"set", "nc_ta_length", "600"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if reply != "Setting nc_ta_length is now 600" {
		t.Fatalf("unexpected reply %q", reply)
	}

	reply, _ = cm.Execute(admin, "nc", []string{"settings"})
	if reply != "nc_ta_length=600" {
		t.Fatalf("unexpected settings reply %q", reply)
	}

	reply, _ = cm.Execute(admin, "nc", []string{"status"})
	if reply != "Phase: knockout, round 2, 3 players left, KOs: 1" {
		t.Fatalf("unexpected status reply %q", reply)
	}

	if _, err := cm.Execute(admin, "nc", []string{"chat", "good", "luck"}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(ctrl.chat) != 1 || ctrl.chat[0] != "all: good luck" {
		t.Fatalf("unexpected chat %v", ctrl.chat)
	}
}

func TestCommandPermissions(t *testing.T) {
	cm, ctrl := loadScripts(t)
	racer := Caller{Login: "racer"}

	if _, err := cm.Execute(racer, "nc", []string{"start"}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(ctrl.calls) != 0 {
		t.Fatalf("denied command reached the controller: %v", ctrl.calls)
	}

	if _, err := cm.Execute(racer, "nope", nil); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}

	reply, err := cm.Execute(racer, "ban", []string{"2"})
	if err != nil {
		t.Fatalf("ban returned error: %v", err)
	}
	if reply != "" || len(ctrl.calls) != 1 || ctrl.calls[0] != "Ban racer" {
		t.Fatalf("unexpected ban result %q %v", reply, ctrl.calls)
	}
}

func TestHelpListsVisibleCommands(t *testing.T) {
	cm, _ := loadScripts(t)

	reply, err := cm.Execute(Caller{Login: "racer"}, "commands", nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if reply != "//ban <number> | //help" {
		t.Fatalf("unexpected help for racer %q", reply)
	}

	reply, _ = cm.Execute(admin, "help", nil)
	if strings.Contains(reply, "reload") || !strings.Contains(reply, "//match") {
		t.Fatalf("unexpected help for admin %q", reply)
	}
}

func TestMatchAndReload(t *testing.T) {
	cm, ctrl := loadScripts(t)

	reply, err := cm.Execute(admin, "match", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if reply != "Match started, ban phase is running" || ctrl.calls[0] != "StartMatch a,b,c" {
		t.Fatalf("unexpected match result %q %v", reply, ctrl.calls)
	}

	if _, err := cm.Execute(admin, "reload", nil); err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if ctrl.reloads != 1 {
		t.Fatalf("expected one reload, got %d", ctrl.reloads)
	}
}

func TestLoadCommandStringRequiresHandler(t *testing.T) {
	cm := NewCommandManager(nil)

	if err := cm.LoadCommandString(`name = "broken"`, nil); err == nil {
		t.Fatalf("expected an error for a command without handler")
	}
	if err := cm.LoadCommandString(`description = "x"`, nil); err == nil {
		t.Fatalf("expected an error for a command without name")
	}

	err := cm.LoadCommandString(`
name = "Echo"
aliases = "e, say"
function execute(player, args) return player.nickname .. ": " .. args[1] end
`, nil)
	if err != nil {
		t.Fatalf("LoadCommandString returned error: %v", err)
	}
	reply, err := cm.Execute(Caller{Login: "x", Nickname: "Xer"}, "SAY", []string{"hi"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if reply != "Xer: hi" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestSandboxRemovesUnsafeLibraries(t *testing.T) {
	vm := NewVM()
	if err := vm.LoadString(`blocked = (os == nil) and (io == nil) and (dofile == nil)`); err != nil {
		t.Fatalf("LoadString returned error: %v", err)
	}
	blocked, err := vm.GetGlobalBool("blocked")
	if err != nil || !blocked {
		t.Fatalf("unsafe libraries still reachable: %v %v", blocked, err)
	}
}
