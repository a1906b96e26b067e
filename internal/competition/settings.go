package competition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/siohaza/nightcup/pkg/config"
)

const (
	SettingTimeUntilTA         = "nc_time_until_ta"
	SettingTALength            = "nc_ta_length"
	SettingTimeUntilKO         = "nc_time_until_ko"
	SettingTAWarmup            = "nc_ta_wu_duration"
	SettingKOWarmup            = "nc_ko_wu_duration"
	SettingFinishTimeout       = "nc_finish_timeout"
	SettingQualifiedPercentage = "nc_qualified_percentage"
	SettingChatPrefix          = "nc_chat_prefix"
	SettingKickWhenFull        = "nc_kick_when_full"
)

type Kind int

const (
	KindInt Kind = iota + 1
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a setting value of one of the supported kinds.
type Value struct {
	Kind Kind
	Int  int
	Str  string
	Bool bool
}

func IntValue(n int) Value       { return Value{Kind: KindInt, Int: n} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.Itoa(v.Int)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// Any returns the value as a plain Go value.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindBool:
		return v.Bool
	default:
		return v.Str
	}
}

// ParseValue converts raw text into a value of the given kind.
func ParseValue(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindInt:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, errors.New("not an integer")
		}
		return IntValue(n), nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, errors.New("not a boolean")
		}
		return BoolValue(b), nil
	case KindString:
		return StringValue(raw), nil
	default:
		return Value{}, fmt.Errorf("unsupported kind %s", kind)
	}
}

// Validator returns a user facing reason when v is not acceptable.
type Validator func(v Value) error

// AtLeastOrDisabled accepts 0 and -1 (disabled) or any value of at least minSeconds.
func AtLeastOrDisabled(minSeconds int) Validator {
	return func(v Value) error {
		if v.Int == 0 || v.Int == -1 || v.Int >= minSeconds {
			return nil
		}
		return fmt.Errorf("Time can not be shorter than %d seconds.", minSeconds)
	}
}

func Between(lo, hi int) Validator {
	return func(v Value) error {
		if v.Int < lo || v.Int > hi {
			return fmt.Errorf("Value must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func NonNegative() Validator {
	return func(v Value) error {
		if v.Int < 0 && v.Int != -1 {
			return errors.New("Value must be positive or -1")
		}
		return nil
	}
}

type Setting struct {
	Name        string
	Description string
	Value       Value
	Default     Value
	Validators  []Validator
}

// Settings is the ordered set of competition settings editable by admins.
type Settings struct {
	order  []string
	byName map[string]*Setting
}

// NewSettings builds the settings with the configured values as defaults.
func NewSettings(cfg config.CompetitionConfig, chatPrefix string) *Settings {
	s := &Settings{byName: make(map[string]*Setting)}

	s.define(SettingTimeUntilTA, "Time before TA phase starts", IntValue(cfg.TimeUntilTA), AtLeastOrDisabled(5))
	s.define(SettingTALength, "Length of TA phase", IntValue(cfg.TALength), NonNegative())
	s.define(SettingTimeUntilKO, "Time between TA phase and KO phase", IntValue(cfg.TimeUntilKO), AtLeastOrDisabled(5))
	s.define(SettingTAWarmup, "Length of warmups before TA for players to load the map", IntValue(cfg.TAWarmupDuration), NonNegative())
	s.define(SettingKOWarmup, "Length of warmups before KO for players to load the map", IntValue(cfg.KOWarmupDuration), NonNegative())
	s.define(SettingFinishTimeout, "Timeout after first player finishes in KO phase", IntValue(cfg.FinishTimeout), NonNegative())
	s.define(SettingQualifiedPercentage, "Percentage of TA finishers that will qualify to the KO phase", IntValue(cfg.QualifiedPercentage), Between(0, 100))
	s.define(SettingChatPrefix, "Prefix of every NightCup chat message", StringValue(chatPrefix))
	s.define(SettingKickWhenFull, "Kick eliminated players when the spectator slots are full", BoolValue(cfg.KickWhenFull))

	return s
}

func (s *Settings) define(name, description string, value Value, validators ...Validator) {
	s.order = append(s.order, name)
	s.byName[name] = &Setting{
		Name:        name,
		Description: description,
		Value:       value,
		Default:     value,
		Validators:  validators,
	}
}

func (s *Settings) Get(name string) (Setting, bool) {
	setting, ok := s.byName[name]
	if !ok {
		return Setting{}, false
	}
	return *setting, true
}

func (s *Settings) All() []Setting {
	out := make([]Setting, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.byName[name])
	}
	return out
}

func (s *Settings) Int(name string) int {
	if setting, ok := s.byName[name]; ok {
		return setting.Value.Int
	}
	return 0
}

func (s *Settings) String(name string) string {
	if setting, ok := s.byName[name]; ok {
		return setting.Value.Str
	}
	return ""
}

func (s *Settings) Bool(name string) bool {
	if setting, ok := s.byName[name]; ok {
		return setting.Value.Bool
	}
	return false
}

// Set validates v and stores it. A rejected value leaves the setting unchanged.
func (s *Settings) Set(name string, v Value) error {
	setting, ok := s.byName[name]
	if !ok {
		return &SettingError{Name: name, Value: v.String(), Reason: "unknown setting"}
	}
	if v.Kind != setting.Value.Kind {
		return &SettingError{Name: name, Value: v.String(), Reason: fmt.Sprintf("expected %s", setting.Value.Kind)}
	}
	for _, validate := range setting.Validators {
		if err := validate(v); err != nil {
			return &SettingError{Name: name, Value: v.String(), Reason: err.Error()}
		}
	}
	setting.Value = v
	return nil
}

// Parse converts raw to the setting's kind and stores it.
func (s *Settings) Parse(name, raw string) error {
	setting, ok := s.byName[name]
	if !ok {
		return &SettingError{Name: name, Value: raw, Reason: "unknown setting"}
	}
	v, err := ParseValue(setting.Value.Kind, raw)
	if err != nil {
		return &SettingError{Name: name, Value: raw, Reason: err.Error()}
	}
	return s.Set(name, v)
}
