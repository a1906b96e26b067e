// Package lua runs chat commands written as Lua scripts. Every script file
// declares a command through globals (name, aliases, description, usage,
// permission, hidden) and a handler function called with the caller and the
// argument list.
package lua

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrPermissionDenied = errors.New("you don't have permission to use this command")
)

type CommandPermission int

const (
	PermissionNone CommandPermission = iota
	PermissionAdmin
)

// Caller is the player running a command.
type Caller struct {
	Login    string
	Nickname string
	Admin    bool
}

type LuaCommand struct {
	Name        string
	Aliases     []string
	Permission  CommandPermission
	Description string
	Usage       string
	Handler     string
	Hidden      bool
	VM          *VM
}

type CommandManager struct {
	commands map[string]*LuaCommand
	aliases  map[string]string
	logger   *slog.Logger
}

func NewCommandManager(logger *slog.Logger) *CommandManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandManager{
		commands: make(map[string]*LuaCommand),
		aliases:  make(map[string]string),
		logger:   logger,
	}
}

func (cm *CommandManager) LoadCommands(commandsDir string, api *API) error {
	files, err := os.ReadDir(commandsDir)
	if err != nil {
		return fmt.Errorf("failed to read commands directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".lua") {
			continue
		}

		commandPath := filepath.Join(commandsDir, file.Name())
		if err := cm.LoadCommandFile(commandPath, api); err != nil {
			cm.logger.Warn("failed to load command file", "file", file.Name(), "error", err)
			continue
		}
	}

	cm.logger.Info("loaded lua commands", "count", len(cm.commands))
	return nil
}

func (cm *CommandManager) Reload(commandsDir string, api *API) error {
	cm.commands = make(map[string]*LuaCommand)
	cm.aliases = make(map[string]string)

	return cm.LoadCommands(commandsDir, api)
}

func (cm *CommandManager) LoadCommandFile(path string, api *API) error {
	vm := NewVM()
	if api != nil {
		api.RegisterFunctions(vm)
	}
	if err := vm.LoadFile(path); err != nil {
		return err
	}
	return cm.define(vm)
}

// LoadCommandString registers a command from source, as LoadCommandFile does
// for a file.
func (cm *CommandManager) LoadCommandString(code string, api *API) error {
	vm := NewVM()
	if api != nil {
		api.RegisterFunctions(vm)
	}
	if err := vm.LoadString(code); err != nil {
		return err
	}
	return cm.define(vm)
}

func (cm *CommandManager) define(vm *VM) error {
	name, err := vm.GetGlobalString("name")
	if err != nil {
		return fmt.Errorf("command missing 'name': %w", err)
	}

	cmd := &LuaCommand{
		Name:    strings.ToLower(name),
		Handler: "execute",
		VM:      vm,
	}

	if aliases, err := vm.GetGlobalString("aliases"); err == nil {
		for _, alias := range strings.Split(aliases, ",") {
			if alias = strings.TrimSpace(alias); alias != "" {
				cmd.Aliases = append(cmd.Aliases, strings.ToLower(alias))
			}
		}
	}
	if desc, err := vm.GetGlobalString("description"); err == nil {
		cmd.Description = desc
	}
	if usage, err := vm.GetGlobalString("usage"); err == nil {
		cmd.Usage = usage
	}
	if perm, err := vm.GetGlobalString("permission"); err == nil {
		cmd.Permission = parsePermission(perm)
	}
	if handler, err := vm.GetGlobalString("handler"); err == nil {
		cmd.Handler = handler
	}
	if hidden, err := vm.GetGlobalBool("hidden"); err == nil {
		cmd.Hidden = hidden
	}

	if !vm.HasFunction(cmd.Handler) {
		return fmt.Errorf("command %s: handler %s is not a function", cmd.Name, cmd.Handler)
	}

	cm.Register(cmd)
	return nil
}

func (cm *CommandManager) Register(cmd *LuaCommand) {
	cm.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		cm.aliases[alias] = cmd.Name
	}
}

func (cm *CommandManager) Get(name string) *LuaCommand {
	name = strings.ToLower(name)
	if canonical, ok := cm.aliases[name]; ok {
		return cm.commands[canonical]
	}
	return cm.commands[name]
}

// Execute runs the named command for caller and returns the handler's reply.
func (cm *CommandManager) Execute(caller Caller, cmdName string, args []string) (string, error) {
	cmd := cm.Get(cmdName)
	if cmd == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmdName)
	}

	if !hasPermission(caller, cmd.Permission) {
		return "", ErrPermissionDenied
	}

	state := cmd.VM.State()
	state.Global(cmd.Handler)
	if !state.IsFunction(-1) {
		state.Pop(1)
		return "", fmt.Errorf("command handler not found: %s", cmd.Handler)
	}

	PushCaller(state, caller)

	state.NewTable()
	state.PushString(cmdName)
	state.RawSetInt(-2, 0)
	for i, arg := range args {
		state.PushString(arg)
		state.RawSetInt(-2, i+1)
	}

	if err := state.ProtectedCall(2, 1, 0); err != nil {
		return "", enhanceError("command "+cmd.Name, err)
	}

	result := ""
	if state.IsString(-1) {
		result, _ = state.ToString(-1)
	}
	state.Pop(1)

	cm.logger.Debug("command executed", "command", cmd.Name, "login", caller.Login)
	return result, nil
}

// List returns the visible commands caller may run, sorted by name.
func (cm *CommandManager) List(caller Caller) []*LuaCommand {
	var commands []*LuaCommand
	for _, cmd := range cm.commands {
		if !cmd.Hidden && hasPermission(caller, cmd.Permission) {
			commands = append(commands, cmd)
		}
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands
}

// PushCaller pushes caller as a table with login, nickname and admin fields.
func PushCaller(state *lua.State, caller Caller) {
	state.NewTable()
	state.PushString(caller.Login)
	state.SetField(-2, "login")
	state.PushString(caller.Nickname)
	state.SetField(-2, "nickname")
	state.PushBoolean(caller.Admin)
	state.SetField(-2, "admin")
}

func parsePermission(perm string) CommandPermission {
	switch strings.ToLower(perm) {
	case "admin":
		return PermissionAdmin
	default:
		return PermissionNone
	}
}

func hasPermission(caller Caller, required CommandPermission) bool {
	switch required {
	case PermissionNone:
		return true
	case PermissionAdmin:
		return caller.Admin
	}
	return false
}
