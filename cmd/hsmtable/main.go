// Command hsmtable compiles a YAML machine manifest and prints its dispatch
// tables, its initial state map or a PlantUML diagram.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stateforward/hsm-dispatch"
	"github.com/stateforward/hsm-dispatch/elements"
	"github.com/stateforward/hsm-dispatch/pkg/manifest"
	"github.com/stateforward/hsm-dispatch/pkg/plantuml"
)

const levelEnv = "HSMTABLE_LOG_LEVEL"

type options struct {
	logLevel string
	output   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "hsmtable",
		Short:        "Inspect the dispatch tables of a state machine manifest",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", os.Getenv(levelEnv), "log level (debug, info, warn, error); defaults to $"+levelEnv)
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or yaml")

	root.AddCommand(&cobra.Command{
		Use:   "table FILE",
		Short: "Print every non-empty dispatch table cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			machine, err := compile(cmd, opts, args[0])
			if err != nil {
				return err
			}
			if opts.output == "yaml" {
				return writeYAML(cmd.OutOrStdout(), machine.Rows())
			}
			return writeRows(cmd.OutOrStdout(), machine.Rows())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "initial FILE",
		Short: "Print the initial states of every composite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			machine, err := compile(cmd, opts, args[0])
			if err != nil {
				return err
			}
			if opts.output == "yaml" {
				return writeYAML(cmd.OutOrStdout(), machine.Regions())
			}
			for _, region := range machine.Regions() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", region.Parent, strings.Join(region.States, ", "))
			}
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "plantuml FILE",
		Short: "Render the machine as a PlantUML state diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			machine, err := compile(cmd, opts, args[0])
			if err != nil {
				return err
			}
			return plantuml.Generate(cmd.OutOrStdout(), machine)
		},
	})
	return root
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	parsed := zerolog.WarnLevel
	if level != "" {
		var err error
		if parsed, err = zerolog.ParseLevel(level); err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(parsed).
		With().
		Timestamp().
		Logger(), nil
}

func compile(cmd *cobra.Command, opts *options, path string) (*hsm.Machine[struct{}], error) {
	if opts.output != "text" && opts.output != "yaml" {
		return nil, fmt.Errorf("unsupported output %q", opts.output)
	}
	logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
	if err != nil {
		return nil, err
	}
	doc, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	machine, err := manifest.Compile(doc, manifest.Bindings[struct{}]{},
		manifest.Lenient(),
		manifest.WithConfig(hsm.Config{Logger: logger}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("file", path).Int("states", machine.NumStates()).Int("events", len(machine.Events())).Msg("compiled")
	return machine, nil
}

func writeYAML(w io.Writer, value any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	return encoder.Close()
}

func writeRows(w io.Writer, rows []elements.Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tCELL\tTARGET\tGUARD\tEFFECTS\tFLAGS")
	for _, row := range rows {
		target := "-"
		if row.TargetState != "" {
			target = row.TargetParent + "/" + row.TargetState
		}
		var flags []string
		if row.Origin != "none" {
			flags = append(flags, row.Origin)
		}
		if row.History {
			flags = append(flags, "history")
		}
		if row.Deferred {
			flags = append(flags, "deferred")
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%s\t%s\n",
			row.Event,
			row.Parent, row.State,
			target,
			dash(row.Guard),
			dash(strings.Join(row.Effects, ", ")),
			strings.Join(flags, ","),
		)
	}
	return tw.Flush()
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
