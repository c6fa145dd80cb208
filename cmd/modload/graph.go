// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/invowk/modload/internal/issue"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/pkg/modload"
	"github.com/invowk/modload/pkg/types"
)

func newGraphCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <entry>",
		Short: "Print the linked dependency graph of an entry module",
		Long: `Resolve, load and link an entry module and its static imports without
evaluating any body, then print the dependency tree, the order bodies would be
evaluated in and every import cycle.

Dependencies of dynamic modules are only known once they run, so dynamic
modules appear as leaves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, app, args[0])
		},
	}
}

func runGraph(cmd *cobra.Command, app *App, entry string) error {
	ctx := cmd.Context()

	cfg, _, err := app.loadConfig(ctx)
	if err != nil {
		return app.fail(cmd, nil, types.ExitFailure, err)
	}
	realm, err := app.newRealm(cfg)
	if err != nil {
		return app.fail(cmd, cfg, types.ExitFailure, err)
	}

	g, linkErr := realm.Graph(ctx, entry)
	if g == nil {
		return app.fail(cmd, cfg, types.ExitModuleError, issue.Wrap(linkErr, "link module", entry))
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Dependency tree"))
	fmt.Fprint(app.stdout, renderTree(app, g))

	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, TitleStyle.Render("Evaluation order"))
	for i, u := range g.EvaluationOrder() {
		fmt.Fprintf(app.stdout, "  %d. %s\n", i+1, app.displayURL(u))
	}

	if cycles := g.Cycles(); len(cycles) > 0 {
		fmt.Fprintln(app.stdout)
		fmt.Fprintln(app.stdout, TitleStyle.Render("Cycles"))
		for _, cycle := range cycles {
			names := make([]string, 0, len(cycle)+1)
			for _, u := range cycle {
				names = append(names, app.displayURL(u))
			}
			names = append(names, names[0])
			fmt.Fprintf(app.stdout, "  %s\n", WarningStyle.Render(strings.Join(names, " -> ")))
		}
	}

	if linkErr != nil {
		return app.fail(cmd, cfg, types.ExitModuleError, issue.Wrap(linkErr, "link module", entry))
	}
	return nil
}

// renderTree prints g as a tree rooted at the entry. A module already printed
// higher up is shown again without its imports.
func renderTree(app *App, g *modload.Graph) string {
	tree := treeprint.NewWithRoot(moduleLabel(app, g, g.Root))
	expanded := map[string]bool{g.Root: true}
	addImports(app, g, tree, g.Root, expanded)
	return tree.String()
}

func addImports(app *App, g *modload.Graph, branch treeprint.Tree, from string, expanded map[string]bool) {
	for _, u := range g.Imports(from) {
		label := moduleLabel(app, g, u)
		if expanded[u] {
			branch.AddNode(label + " " + SubtitleStyle.Render("(seen)"))
			continue
		}
		expanded[u] = true
		if len(g.Imports(u)) == 0 {
			branch.AddNode(label)
			continue
		}
		addImports(app, g, branch.AddBranch(label), u, expanded)
	}
}

func moduleLabel(app *App, g *modload.Graph, u string) string {
	label := app.displayURL(u)
	m, ok := g.Module(u)
	if !ok {
		return label + " " + ErrorStyle.Render("[unresolved]")
	}
	label += " " + VerboseStyle.Render("["+string(m.Format)+"]")
	if m.State == registry.StateErrored && m.Err != nil {
		label += " " + ErrorStyle.Render(m.Err.Error())
	}
	return label
}
