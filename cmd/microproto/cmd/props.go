package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/types"
)

var propsCmd = &cobra.Command{
	Use:   "props",
	Short: "Inspect and edit stored property values",
}

var propsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List properties with their types and values",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tFLAGS\tVALUE")
		err := rt.sys.Exec(cmd.Context(), func() error {
			for _, p := range rt.sys.Registry().All() {
				v, err := valueJSON(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID(), p.Name(), p.TypeDef(), flagNames(p.Flags()), v)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return w.Flush()
	}),
}

var propsGetCmd = &cobra.Command{
	Use:   "get <name> [path]",
	Short: "Print a property value as JSON",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
		var raw string
		if len(args) == 2 {
			raw = args[1]
		}
		path, err := types.ParsePath(raw)
		if err != nil {
			return err
		}
		return rt.sys.Exec(cmd.Context(), func() error {
			p, err := lookup(rt, args[0])
			if err != nil {
				return err
			}
			v, err := property.Generic(p)
			if err != nil {
				return err
			}
			res, err := codec.Resolve(path, v)
			if err != nil {
				return err
			}
			out, err := json.Marshal(codec.ToJSON(res.Value))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		})
	}),
}

var propsSetCmd = &cobra.Command{
	Use:   "set <name> <json>",
	Short: "Write a property value and persist it",
	Long:  `Write a property from a JSON value. Bare words that are not JSON are taken as strings.`,
	Args:  cobra.ExactArgs(2),
	RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
		in := decodeArg(args[1])
		return rt.sys.Exec(cmd.Context(), func() error {
			p, err := lookup(rt, args[0])
			if err != nil {
				return err
			}
			if p.Flags().Has(property.FlagReadOnly) {
				return fmt.Errorf("%s: %w", p.Name(), types.ErrReadOnly)
			}
			if err := p.SetGeneric(in); err != nil {
				return fmt.Errorf("set %s: %w", p.Name(), err)
			}
			if err := rt.sys.Flush(cmd.Context(), p.ID()); err != nil {
				return err
			}
			v, err := valueJSON(p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", p.Name(), v)
			return nil
		})
	}),
}

var propsDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every property value as YAML",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
		out := map[string]any{}
		err := rt.sys.Exec(cmd.Context(), func() error {
			for _, p := range rt.sys.Registry().All() {
				v, err := property.Generic(p)
				if err != nil {
					return err
				}
				out[p.Name()] = codec.ToJSON(v)
			}
			return nil
		})
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	}),
}

var propsEraseCmd = &cobra.Command{
	Use:   "erase [name]",
	Short: "Drop stored values (one property, or all with no argument)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
		return rt.sys.Exec(cmd.Context(), func() error {
			if len(args) == 0 {
				if err := rt.sys.EraseAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "erased all stored values")
				return nil
			}
			p, err := lookup(rt, args[0])
			if err != nil {
				return err
			}
			if err := rt.sys.Erase(cmd.Context(), p.ID()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "erased %s\n", p.Name())
			return nil
		})
	}),
}

func init() {
	rootCmd.AddCommand(propsCmd)
	propsCmd.AddCommand(propsListCmd, propsGetCmd, propsSetCmd, propsDumpCmd, propsEraseCmd)
}

// withRuntime opens the device runtime around fn. Property commands log
// only warnings so their output stays readable.
func withRuntime(fn func(*cobra.Command, *runtime, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		log = log.Level(max(log.GetLevel(), zerolog.WarnLevel))

		rt, err := openRuntime(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		err = fn(cmd, rt, args)
		if cerr := rt.Close(); err == nil {
			err = cerr
		}
		return err
	}
}

func lookup(rt *runtime, name string) (property.Property, error) {
	p, ok := rt.sys.Registry().Lookup(name)
	if !ok {
		return nil, fmt.Errorf("property %q: %w", name, types.ErrNotFound)
	}
	return p, nil
}

func valueJSON(p property.Property) (string, error) {
	v, err := property.Generic(p)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(codec.ToJSON(v))
	return string(out), err
}

// decodeArg parses a command line value as JSON, falling back to the raw
// text.
func decodeArg(arg string) any {
	dec := json.NewDecoder(strings.NewReader(arg))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return arg
	}
	return v
}

func flagNames(f property.Flags) string {
	var names []string
	for _, fl := range []struct {
		flag property.Flags
		name string
	}{
		{property.FlagPersistent, "persistent"},
		{property.FlagReadOnly, "readonly"},
		{property.FlagHidden, "hidden"},
		{property.FlagBLEExposed, "ble"},
	} {
		if f.Has(fl.flag) {
			names = append(names, fl.name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
