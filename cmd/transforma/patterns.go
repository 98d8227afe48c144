package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/transformahq/transforma-agent/internal/cli"
	"github.com/transformahq/transforma-agent/internal/common"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect the filename routing patterns",
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsMatchCmd())
	cmd.AddCommand(patternsTestCmd())

	return cmd
}

func patternsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routing patterns in evaluation order",
		RunE: func(c *cobra.Command, _ []string) error {
			patternsFile, _ := c.Flags().GetString("patterns")
			r, err := buildRouter(patternsFile, 0)
			if err != nil {
				return err
			}

			header := fmt.Sprintf("%-12s %-45s %s", "NAME", "PATTERN", "DESCRIPTION")
			fmt.Println(cli.TableHeaderStyle.Render(header))
			for _, p := range r.Patterns() {
				fmt.Printf("%-12s %-45s %s\n", p.Name, p.Regex.String(), p.Description)
			}
			return nil
		},
	}

	cmd.Flags().String("patterns", "", "JSON file with extra filename patterns")
	return cmd
}

func patternsMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <filename>",
		Short: "Show which pattern a filename matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			patternsFile, _ := c.Flags().GetString("patterns")
			r, err := buildRouter(patternsFile, 0)
			if err != nil {
				return err
			}

			filename := args[0]
			for _, p := range r.Patterns() {
				if p.Regex.MatchString(filename) {
					fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s matches %q", filename, p.Name)))
					if p.Description != "" {
						fmt.Println(cli.SubtleStyle.Render("  " + p.Description))
					}
					return nil
				}
			}

			fmt.Println(cli.FormatInfo(filename + " matches no filename pattern; content analysis decides"))
			return nil
		},
	}

	cmd.Flags().String("patterns", "", "JSON file with extra filename patterns")
	return cmd
}

func patternsTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <pattern> <text>",
		Short: "Try a regex against a sample filename",
		Long: `Test a candidate pattern before adding it to a patterns file.
Patterns are matched case-insensitively, the same way the router
compiles them.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			matched, err := common.MatchRegex(args[0], args[1])
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}

			if matched {
				fmt.Println(cli.FormatSuccess("Match"))
			} else {
				fmt.Println(cli.FormatError("No match"))
			}
			return nil
		},
	}
}
