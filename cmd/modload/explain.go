// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/modload/internal/issue"
	"github.com/invowk/modload/pkg/types"
)

// explainTopics names the catalog entries that have no error code.
var explainTopics = map[string]issue.Id{
	"config": issue.ConfigLoadFailedId,
	"cycles": issue.DependencyCycleId,
}

func newExplainCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "explain [code]",
		Short: "Describe an error code",
		Long: `Describe an error code, or list every documented code when none is given.

The "ERR_" prefix may be omitted and codes are case-insensitive.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				listIssues(app)
				return nil
			}
			return explainIssue(cmd, app, args[0])
		},
	}
}

// lookupIssue finds the catalog entry for a code or topic name.
func lookupIssue(name string) *issue.Issue {
	if id, ok := explainTopics[strings.ToLower(name)]; ok {
		return issue.Get(id)
	}
	code := strings.ToUpper(name)
	if !strings.HasPrefix(code, "ERR_") {
		code = "ERR_" + code
	}
	return issue.ForCode(code)
}

func explainIssue(cmd *cobra.Command, app *App, name string) error {
	entry := lookupIssue(name)
	if entry == nil {
		err := issue.NewErrorContext().
			WithOperation("explain").
			WithResource(name).
			WithSuggestion("Run 'modload explain' to list every documented code").
			Wrap(fmt.Errorf("unknown error code %q", name)).
			BuildError()
		return app.fail(cmd, nil, types.ExitFailure, err)
	}

	style := "auto"
	if cfg, _, err := app.loadConfig(cmd.Context()); err == nil {
		style = cfg.UI.ColorScheme.String()
	}
	rendered, err := entry.Render(style)
	if err != nil {
		return app.fail(cmd, nil, types.ExitFailure, err)
	}
	fmt.Fprint(app.stdout, rendered)
	return nil
}

func listIssues(app *App) {
	fmt.Fprintln(app.stdout, TitleStyle.Render("Error codes"))
	for _, entry := range issue.Values() {
		if entry.Code() == "" {
			continue
		}
		fmt.Fprintf(app.stdout, "  %-34s %s\n", CmdStyle.Render(entry.Code()), issueTitle(entry))
	}

	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, TitleStyle.Render("Topics"))
	for _, name := range []string{"config", "cycles"} {
		fmt.Fprintf(app.stdout, "  %-34s %s\n", CmdStyle.Render(name), issueTitle(issue.Get(explainTopics[name])))
	}
}

// issueTitle returns the first heading of an issue's message.
func issueTitle(entry *issue.Issue) string {
	for line := range strings.Lines(string(entry.MarkdownMsg())) {
		if title, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return title
		}
	}
	return ""
}
