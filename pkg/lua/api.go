package lua

import (
	"github.com/Shopify/go-lua"

	"github.com/siohaza/nightcup/internal/competition"
)

// Controller is the competition surface exposed to command scripts. Calls are
// made from the goroutine running the command.
type Controller interface {
	Start(admin string) error
	Stop(by string) error
	AddQualified(login string) error
	RemoveQualified(login string) error
	Whitelist(login string) error
	Unwhitelist(login string) error
	RemoveStanding(login string) error
	UpdateSetting(name, value string) error
	Settings() []competition.Setting
	Announce(message string)
	Status() competition.Status
	SendChat(message string, recipients ...string)
	StartMatch(entrants []string) error
	Ban(login string, index int) (string, error)
	ReloadCommands() error
}

type API struct {
	controller     Controller
	commandManager *CommandManager
}

func NewAPI(controller Controller) *API {
	return &API{controller: controller}
}

func (api *API) SetCommandManager(cm *CommandManager) {
	api.commandManager = cm
}

func (api *API) RegisterFunctions(vm *VM) {
	state := vm.State()

	state.Register("nc_start", api.loginCall(func(l string) error { return api.controller.Start(l) }))
	state.Register("nc_stop", api.loginCall(func(l string) error { return api.controller.Stop(l) }))
	state.Register("nc_add_qualified", api.loginCall(func(l string) error { return api.controller.AddQualified(l) }))
	state.Register("nc_remove_qualified", api.loginCall(func(l string) error { return api.controller.RemoveQualified(l) }))
	state.Register("nc_whitelist", api.loginCall(func(l string) error { return api.controller.Whitelist(l) }))
	state.Register("nc_unwhitelist", api.loginCall(func(l string) error { return api.controller.Unwhitelist(l) }))
	state.Register("nc_remove_standing", api.loginCall(func(l string) error { return api.controller.RemoveStanding(l) }))
	state.Register("nc_set_setting", api.setSetting)
	state.Register("nc_get_setting", api.getSetting)
	state.Register("nc_settings", api.settings)
	state.Register("nc_announce", api.announce)
	state.Register("nc_status", api.status)
	state.Register("nc_send_chat", api.sendChat)
	state.Register("nc_match_start", api.matchStart)
	state.Register("nc_ban", api.ban)
	state.Register("nc_reload_commands", api.reloadCommands)
	state.Register("nc_commands", api.commands)
}

// pushResult pushes the (ok, message) pair every mutating function returns.
func pushResult(state *lua.State, err error) int {
	if err != nil {
		state.PushBoolean(false)
		state.PushString(err.Error())
		return 2
	}
	state.PushBoolean(true)
	state.PushString("")
	return 2
}

func (api *API) loginCall(fn func(login string) error) lua.Function {
	return func(state *lua.State) int {
		login, _ := state.ToString(1)
		return pushResult(state, fn(login))
	}
}

func (api *API) setSetting(state *lua.State) int {
	name, _ := state.ToString(1)
	value, _ := state.ToString(2)
	return pushResult(state, api.controller.UpdateSetting(name, value))
}

func (api *API) getSetting(state *lua.State) int {
	name, _ := state.ToString(1)
	for _, s := range api.controller.Settings() {
		if s.Name == name {
			state.PushString(s.Value.String())
			return 1
		}
	}
	state.PushNil()
	return 1
}

func (api *API) settings(state *lua.State) int {
	state.NewTable()
	for i, s := range api.controller.Settings() {
		state.NewTable()
		state.PushString(s.Name)
		state.SetField(-2, "name")
		state.PushString(s.Value.String())
		state.SetField(-2, "value")
		state.PushString(s.Description)
		state.SetField(-2, "description")
		state.RawSetInt(-2, i+1)
	}
	return 1
}

func (api *API) announce(state *lua.State) int {
	message, _ := state.ToString(1)
	if message != "" {
		api.controller.Announce(message)
	}
	return 0
}

func (api *API) status(state *lua.State) int {
	st := api.controller.Status()

	state.NewTable()
	state.PushString(st.Phase)
	state.SetField(-2, "phase")
	state.PushString(st.Admin)
	state.SetField(-2, "admin")
	state.PushInteger(st.Round)
	state.SetField(-2, "round")
	state.PushString(st.Title)
	state.SetField(-2, "title")
	state.PushInteger(st.RequiredKOs)
	state.SetField(-2, "required_kos")
	pushStrings(state, st.Qualified)
	state.SetField(-2, "qualified")
	pushStrings(state, st.Whitelist)
	state.SetField(-2, "whitelist")
	return 1
}

func pushStrings(state *lua.State, values []string) {
	state.NewTable()
	for i, v := range values {
		state.PushString(v)
		state.RawSetInt(-2, i+1)
	}
}

func checkStrings(state *lua.State, idx int) []string {
	if !state.IsTable(idx) {
		return nil
	}
	var out []string
	length := state.RawLength(idx)
	for i := 1; i <= length; i++ {
		state.RawGetInt(idx, i)
		if s, ok := state.ToString(-1); ok && s != "" {
			out = append(out, s)
		}
		state.Pop(1)
	}
	return out
}

// nc_send_chat(login, message) whispers to login, or broadcasts when login
// is empty.
func (api *API) sendChat(state *lua.State) int {
	login, _ := state.ToString(1)
	message, _ := state.ToString(2)
	if login == "" {
		api.controller.SendChat(message)
	} else {
		api.controller.SendChat(message, login)
	}
	return 0
}

func (api *API) matchStart(state *lua.State) int {
	return pushResult(state, api.controller.StartMatch(checkStrings(state, 1)))
}

// nc_ban(login, index) returns ok and the banned map name or the error.
func (api *API) ban(state *lua.State) int {
	login, _ := state.ToString(1)
	index, _ := state.ToInteger(2)

	name, err := api.controller.Ban(login, index)
	if err != nil {
		return pushResult(state, err)
	}
	state.PushBoolean(true)
	state.PushString(name)
	return 2
}

func (api *API) reloadCommands(state *lua.State) int {
	return pushResult(state, api.controller.ReloadCommands())
}

// nc_commands(caller) lists {name, usage, description} for the commands the
// caller table may run.
func (api *API) commands(state *lua.State) int {
	state.NewTable()
	if api.commandManager == nil {
		return 1
	}

	var caller Caller
	if state.IsTable(1) {
		state.Field(1, "login")
		caller.Login, _ = state.ToString(-1)
		state.Pop(1)
		state.Field(1, "admin")
		caller.Admin = state.ToBoolean(-1)
		state.Pop(1)
	}

	for i, cmd := range api.commandManager.List(caller) {
		state.NewTable()
		state.PushString(cmd.Name)
		state.SetField(-2, "name")
		state.PushString(cmd.Usage)
		state.SetField(-2, "usage")
		state.PushString(cmd.Description)
		state.SetField(-2, "description")
		state.RawSetInt(-2, i+1)
	}
	return 1
}
