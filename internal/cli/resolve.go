package cli

import (
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/resource"
	"github.com/aristath/bob/internal/state"
)

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Show the builder and task for a source, without building",
		Long: `Resolve shows which builder handles a root-relative path and the task it
would create: inputs, outputs, dependencies, signature and whether the
outputs are up to date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			p := a.newProject(ws, nil, nil, "resolve")
			task, desc, err := p.Resolve(args[0])
			if err != nil {
				return err
			}

			st := state.Load(ws.fs.Get(path.Join(ws.fs.BuildDirectory(), state.FileName)), a.logger)
			printTask(a, task, desc, st)
			return nil
		},
	}
}

func printTask(a *app, t *builder.Task, desc builder.Descriptor, st *state.State) {
	w := a.stdout
	fmt.Fprintf(w, "builder:      %s (%s -> %s, create order %d)\n", desc.Name, strings.Join(desc.InExts, " "), desc.OutExt, desc.CreateOrder)
	fmt.Fprintf(w, "task:         %s\n", t)
	fmt.Fprintf(w, "inputs:       %s\n", joinPaths(t.Inputs))
	fmt.Fprintf(w, "outputs:      %s\n", joinPaths(t.Outputs))
	if len(t.Dependencies) > 0 {
		fmt.Fprintf(w, "dependencies: %s\n", joinPaths(t.Dependencies))
	}

	sig, err := t.Signature()
	if err != nil {
		fmt.Fprintf(w, "signature:    unavailable: %v\n", err)
		return
	}
	fmt.Fprintf(w, "signature:    %s\n", hex.EncodeToString(sig))

	upToDate := true
	for _, out := range t.Outputs {
		if !out.Exists() || !st.Matches(out.AbsPath(), sig) {
			upToDate = false
		}
	}
	fmt.Fprintf(w, "up to date:   %t\n", upToDate)
}

func joinPaths(rs []resource.Resource) string {
	if len(rs) == 0 {
		return "-"
	}
	paths := make([]string, len(rs))
	for i, r := range rs {
		paths[i] = r.Path()
	}
	return strings.Join(paths, " ")
}
