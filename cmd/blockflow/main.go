package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"blockflow/internal/api"
	"blockflow/internal/codegen"
	"blockflow/internal/compile"
	"blockflow/internal/models"
	"blockflow/internal/sim"
)

func main() {
	root := &cobra.Command{
		Use:          "blockflow",
		Short:        "Block-diagram model compiler and fixed-step simulator",
		SilenceUsage: true,
	}
	root.AddCommand(newValidateCmd(), newCompileCmd(), newRunCmd(), newServeCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadModel parses a model document from disk, choosing the YAML parser by
// file extension.
func loadModel(path string) (*models.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parser := models.NewModelParser()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parser.ParseYAML(data)
	default:
		return parser.Parse(data)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <model-file>",
		Short: "Compile a model and print its diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0])
			if err != nil {
				return err
			}
			c := compile.Compile(model)
			if entries := c.Diagnostics.Entries(); len(entries) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), c.Diagnostics.String())
			}
			if c.HasErrors() {
				return fmt.Errorf("model %s has errors", model.Name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model %s: %d blocks, %d connections, ok\n",
				model.Name, len(c.Flattened.Blocks), len(c.Flattened.Connections))
			return nil
		},
	}
}

func newCompileCmd() *cobra.Command {
	var output string
	var name string
	cmd := &cobra.Command{
		Use:   "compile <model-file>",
		Short: "Generate C code for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0])
			if err != nil {
				return err
			}
			if name != "" {
				model.Name = name
			}
			c := compile.Compile(model)
			if c.HasErrors() {
				fmt.Fprintln(cmd.ErrOrStderr(), c.Diagnostics.String())
				return fmt.Errorf("model %s has errors", model.Name)
			}
			out, err := codegen.Generate(c)
			if err != nil {
				return err
			}
			if output == "" {
				output = out.Name + ".c"
			}
			if output == "-" {
				fmt.Fprint(cmd.OutOrStdout(), out.Source)
				return nil
			}
			return os.WriteFile(output, []byte(out.Source), 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <model>.c, - for stdout)")
	cmd.Flags().StringVar(&name, "name", "", "override the model name used for identifiers")
	return cmd
}

func newRunCmd() *cobra.Command {
	var duration float64
	var dt float64
	var inputs []string
	cmd := &cobra.Command{
		Use:   "run <model-file>",
		Short: "Simulate a model and print its outputs as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0])
			if err != nil {
				return err
			}
			if dt > 0 {
				model.Timestep = dt
			}
			c := compile.Compile(model)
			if c.HasErrors() {
				fmt.Fprintln(cmd.ErrOrStderr(), c.Diagnostics.String())
				return fmt.Errorf("model %s has errors", model.Name)
			}
			engine, err := sim.NewEngine(c)
			if err != nil {
				return err
			}
			defer engine.Close()

			for _, in := range inputs {
				name, value, ok := strings.Cut(in, "=")
				if !ok {
					return fmt.Errorf("malformed --input %q, expected name=value", in)
				}
				x, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return fmt.Errorf("malformed --input %q: %v", in, err)
				}
				if err := engine.SetInputScalar(name, x); err != nil {
					return err
				}
			}

			ports := c.Flattened.RootOutputPorts()
			header := []string{"time"}
			for _, fb := range ports {
				t, _ := c.Types.BlockType(fb.ID())
				n := t.ElementCount()
				if n == 1 {
					header = append(header, fb.Block.Name)
					continue
				}
				for i := 0; i < n; i++ {
					header = append(header, fmt.Sprintf("%s[%d]", fb.Block.Name, i))
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(header, ","))

			steps := int(duration/engine.Timestep() + 0.5)
			for i := 0; i < steps; i++ {
				if err := engine.Step(); err != nil {
					return err
				}
				row := []string{strconv.FormatFloat(engine.Time(), 'g', -1, 64)}
				outputs := engine.Outputs()
				for _, fb := range ports {
					v := outputs[fb.Block.Name]
					if v == nil {
						continue
					}
					for _, x := range v.Data {
						row = append(row, strconv.FormatFloat(x, 'g', -1, 64))
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(row, ","))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&duration, "duration", 10, "simulation duration in seconds")
	cmd.Flags().Float64Var(&dt, "dt", 0, "override the model timestep")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "set a scalar input port, name=value (repeatable)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server := api.NewServer()
			defer server.Close()

			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-c
				log.Println("Shutting down server...")
				server.Close()
				os.Exit(0)
			}()

			log.Printf("blockflow server starting...")
			return server.StartServer(port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "8080", "port to run the server on")
	return cmd
}
