// Package config binds the dataflow-join CLI's settings struct to pflag
// flags and viper-sourced environment variables, in the spirit of the
// teacher's process.Bind helper: a struct tagged with `default` values,
// reflected into flags once at startup.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
)

// Error is the error class for configuration binding and validation
// failures.
var Error = errs.Class("config")

// EnvPrefix is the prefix viper uses when reading configuration from the
// process environment, e.g. DATAFLOW_LEFT_KEY_INDICES.
const EnvPrefix = "DATAFLOW"

// Config holds every setting the dataflow-join CLI needs to construct a
// hashjoin.Operator. Field tags carry the flag's default value and help
// text; Bind reflects over them to register one pflag per field.
type Config struct {
	// KeyspaceRoot names the root keyspace segment both sides' per-key
	// state is stored under (each side additionally appends "l"/"r").
	KeyspaceRoot string `default:"dataflow" usage:"root keyspace segment for join state"`

	// JoinType selects one of inner, left, right, full.
	JoinType string `default:"inner" usage:"join type: inner, left, right, full"`

	// LeftKeyIndices/RightKeyIndices are comma-separated column indices
	// forming each side's equi-join key.
	LeftKeyIndices  string `default:"0" usage:"comma-separated left-side join key column indices"`
	RightKeyIndices string `default:"0" usage:"comma-separated right-side join key column indices"`

	// LeftPKIndices/RightPKIndices are comma-separated column indices
	// forming each side's primary key projection.
	LeftPKIndices  string `default:"0" usage:"comma-separated left-side primary key column indices"`
	RightPKIndices string `default:"0" usage:"comma-separated right-side primary key column indices"`

	// DBPath is the bbolt file backing both sides' join state.
	DBPath string `default:"dataflow-join.db" usage:"path to the bbolt database file"`

	// FlushBatchHint is bound and parsed like every other field, but
	// nothing in this module reads it: write batches are created without a
	// capacity hint.
	FlushBatchHint int `default:"256" usage:"write-batch capacity hint (not read by the operator)"`

	// MetricsAddr, if non-empty, serves Prometheus metrics at this address.
	MetricsAddr string `default:"" usage:"address to serve /metrics on, empty disables it"`
}

// Bind registers one pflag per Config field (using its `default` and
// `usage` tags), binds each to viper under EnvPrefix, and returns a
// function that reads the final values back into cfg. Call the returned
// function inside the command's RunE, after cobra has parsed flags.
func Bind(cmd *cobra.Command, cfg *Config) func() error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rv := reflect.ValueOf(cfg).Elem()
	rt := rv.Type()
	flags := cmd.Flags()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name := flagName(field.Name)
		def := field.Tag.Get("default")
		usage := field.Tag.Get("usage")

		switch field.Type.Kind() {
		case reflect.String:
			flags.String(name, def, usage)
		case reflect.Int:
			n, _ := strconv.Atoi(def)
			flags.Int(name, n, usage)
		default:
			panic(fmt.Sprintf("config: unsupported field kind %s for %s", field.Type.Kind(), field.Name))
		}
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err) // BindPFlag only fails on a nil flag, a programmer error here
		}
	}

	return func() error {
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			name := flagName(field.Name)
			fv := rv.Field(i)
			switch field.Type.Kind() {
			case reflect.String:
				fv.SetString(v.GetString(name))
			case reflect.Int:
				fv.SetInt(int64(v.GetInt(name)))
			}
		}
		return cfg.Validate()
	}
}

// flagName lowercases and hyphenates a Go field name, e.g. "LeftKeyIndices"
// becomes "left-key-indices".
func flagName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// ParseIndices splits a comma-separated list of column indices, as stored
// in LeftKeyIndices/RightKeyIndices/LeftPKIndices/RightPKIndices.
func ParseIndices(csv string) ([]int, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, Error.New("empty index list")
	}
	parts := strings.Split(csv, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Validate reports whether the config's values are well-formed enough to
// construct an operator from. It does not validate indices against any
// particular schema length; that is the caller's responsibility once the
// schema is known.
func (c *Config) Validate() error {
	switch c.JoinType {
	case "inner", "left", "right", "full":
	default:
		return Error.New("unknown join type %q", c.JoinType)
	}
	if _, err := ParseIndices(c.LeftKeyIndices); err != nil {
		return Error.Wrap(err)
	}
	if _, err := ParseIndices(c.RightKeyIndices); err != nil {
		return Error.Wrap(err)
	}
	if _, err := ParseIndices(c.LeftPKIndices); err != nil {
		return Error.Wrap(err)
	}
	if _, err := ParseIndices(c.RightPKIndices); err != nil {
		return Error.Wrap(err)
	}
	if c.DBPath == "" {
		return Error.New("db path must not be empty")
	}
	return nil
}
