// Package business loads the shop profile that drives the receptionist prompt
// and answers get_business_info lookups.
package business

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Service is a bookable offering
type Service struct {
	Name        string  `mapstructure:"name" json:"name"`
	Duration    int     `mapstructure:"duration" json:"duration"`
	Price       float64 `mapstructure:"price" json:"price"`
	Description string  `mapstructure:"description" json:"description"`
}

// StaffMember is a barber who can be requested by name
type StaffMember struct {
	Name        string   `mapstructure:"name" json:"name"`
	Role        string   `mapstructure:"role" json:"role"`
	Specialties []string `mapstructure:"specialties" json:"specialties"`
}

// DayHours is either an opening window or closed.
// In profile files a closed day is written as the string "closed".
type DayHours struct {
	Open   string `mapstructure:"open" json:"open,omitempty"`
	Close  string `mapstructure:"close" json:"close,omitempty"`
	Closed bool   `mapstructure:"closed" json:"closed,omitempty"`
}

// Policies are the shop rules read out to callers
type Policies struct {
	Cancellation string   `mapstructure:"cancellation" json:"cancellation"`
	Lateness     string   `mapstructure:"lateness" json:"lateness"`
	Payment      []string `mapstructure:"payment" json:"payment"`
}

// Profile describes the business the receptionist answers for
type Profile struct {
	Name        string              `mapstructure:"name" json:"name"`
	Type        string              `mapstructure:"type" json:"type"`
	Phone       string              `mapstructure:"phone" json:"phone"`
	Address     string              `mapstructure:"address" json:"address"`
	Timezone    string              `mapstructure:"timezone" json:"timezone,omitempty"`
	Hours       map[string]DayHours `mapstructure:"hours" json:"hours"`
	Services    []Service           `mapstructure:"services" json:"services"`
	Staff       []StaffMember       `mapstructure:"staff" json:"staff"`
	Policies    Policies            `mapstructure:"policies" json:"policies"`
	Personality string              `mapstructure:"personality" json:"personality"`
}

// Weekdays in the order hours are read out
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Load reads a profile from a JSON or YAML file
func Load(path string) (*Profile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("business profile not found at %s: %w", path, err)
	}

	var p Profile
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(closedDayHook))
	if err := v.Unmarshal(&p, hook); err != nil {
		return nil, fmt.Errorf("decode business profile: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("business profile %s has no name", path)
	}
	if p.Timezone == "" {
		p.Timezone = "America/New_York"
	}
	return &p, nil
}

var dayHoursType = reflect.TypeOf(DayHours{})

// closedDayHook lets "closed" stand in for a DayHours value
func closedDayHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != dayHoursType || from.Kind() != reflect.String {
		return data, nil
	}
	s, _ := data.(string)
	if strings.EqualFold(strings.TrimSpace(s), "closed") {
		return map[string]interface{}{"closed": true}, nil
	}
	return nil, fmt.Errorf("invalid hours value %q", s)
}

// ServiceByName finds a service case-insensitively
func (p *Profile) ServiceByName(name string) (Service, bool) {
	for _, s := range p.Services {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Service{}, false
}

// Lookup answers a get_business_info topic. Unknown topics report ok=false.
func (p *Profile) Lookup(topic string) (map[string]any, bool) {
	switch strings.ToLower(strings.TrimSpace(topic)) {
	case "hours":
		return map[string]any{"hours": p.hoursPayload()}, true
	case "services", "pricing":
		return map[string]any{"services": p.Services}, true
	case "location":
		return map[string]any{"address": p.Address, "phone": p.Phone}, true
	case "policies":
		return map[string]any{"policies": p.Policies}, true
	case "staff":
		return map[string]any{"staff": p.Staff}, true
	default:
		return nil, false
	}
}

// hoursPayload renders closed days as the string "closed", as the profile file does
func (p *Profile) hoursPayload() map[string]any {
	out := make(map[string]any, len(p.Hours))
	for day, h := range p.Hours {
		if h.Closed {
			out[day] = "closed"
			continue
		}
		out[day] = map[string]string{"open": h.Open, "close": h.Close}
	}
	return out
}
