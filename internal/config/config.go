// Package config resolves the environment knobs controlling recording
// and parses the exclusion-filter file used when reading streams back.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/timeseam/timeseam/internal/clock"
	"github.com/timeseam/timeseam/internal/model"
	"github.com/timeseam/timeseam/internal/reader"
)

// Enabled reports whether recording is on for the given recorder name.
// It walks the environment cascade from the most general variable to
// the most specific: for "timeseam.pilot.agent" it consults
// TIMESEAM_PROFILE, then TIMESEAM_PILOT_PROFILE, then
// TIMESEAM_PILOT_AGENT_PROFILE. The first variable that is set decides;
// a set variable enables recording unless its value is falsey
// ("0", "false", "off", "no", case-insensitive). An empty value counts
// as set and enabled.
func Enabled(name string) bool {
	elems := strings.Split(envName(name), "_")

	check := ""
	for _, elem := range elems {
		check += elem + "_"
		if val, ok := os.LookupEnv(check + "PROFILE"); ok {
			return truthy(val)
		}
	}
	return false
}

// NTPHost returns the reference pool host, from $TIMESEAM_NTPHOST when
// set.
func NTPHost() string {
	if host := os.Getenv("TIMESEAM_NTPHOST"); host != "" {
		return host
	}
	return clock.DefaultNTPHost
}

// LoadFilter reads an exclusion-filter file: a JSON object mapping
// field names to arrays of banned substrings, e.g.
//
//	{"event": ["flush"], "msg": ["pulse", "idle"]}
//
// Field names may use the long aliases "component" and "message".
func LoadFilter(path string) (reader.Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", path, err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, fmt.Errorf("filter %s: expected an object: %w", path, err)
	}

	filter := reader.Filter{}
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if err != nil {
			return
		}
		field, ok := model.CanonicalField(string(key))
		if !ok {
			err = fmt.Errorf("filter %s: unknown field %q", path, key)
			return
		}
		arr, aerr := val.Array()
		if aerr != nil {
			err = fmt.Errorf("filter %s: field %q: expected an array: %w", path, key, aerr)
			return
		}
		for _, item := range arr {
			pat, perr := item.StringBytes()
			if perr != nil {
				err = fmt.Errorf("filter %s: field %q: expected strings: %w", path, key, perr)
				return
			}
			filter[field] = append(filter[field], string(pat))
		}
	})
	if err != nil {
		return nil, err
	}

	return filter, nil
}

// envName maps a dotted recorder name to its environment prefix:
// "timeseam.pilot" becomes "TIMESEAM_PILOT".
func envName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

func truthy(val string) bool {
	switch strings.ToLower(val) {
	case "0", "false", "off", "no":
		return false
	}
	return true
}
