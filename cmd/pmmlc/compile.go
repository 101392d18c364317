package main

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pmmlc/pmmlc/pkg/driver"
	"github.com/pmmlc/pmmlc/pkg/models"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
	"github.com/pmmlc/pmmlc/pkg/xmldom"
)

func newCompileCmd() *cobra.Command {
	var output string
	var functionName string
	var lowercase bool
	var force bool

	cmd := &cobra.Command{
		Use:   "compile <model.pmml>",
		Short: "Compile a PMML RegressionModel document to Lua",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if functionName == "" {
				functionName = cfg.Function.Name
			}

			source, errs, err := compileFile(args[0], functionName, lowercase)
			if err != nil {
				return err
			}
			if len(errs) > 0 {
				printCompileErrors(errs)
				return fmt.Errorf("compilation failed with %d error(s)", len(errs))
			}

			if output == "" {
				fmt.Println(source)
				return nil
			}

			if !force {
				if _, err := os.Stat(output); err == nil {
					overwrite := false
					prompt := &survey.Confirm{
						Message: fmt.Sprintf("%s already exists, overwrite?", output),
						Default: false,
					}
					if err := survey.AskOne(prompt, &overwrite); err != nil {
						return err
					}
					if !overwrite {
						return fmt.Errorf("not overwriting %s", output)
					}
				}
			}

			if err := os.WriteFile(output, []byte(source), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			color.Green("compiled %s -> %s", args[0], output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path for the compiled Lua source (stdout if omitted)")
	cmd.Flags().StringVar(&functionName, "function", "", "name of the emitted scoring function (default from pmmlc.yml)")
	cmd.Flags().BoolVar(&lowercase, "lowercase", true, "lowercase string literals in emitted source")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite the output file without prompting")
	return cmd
}

// compileFile reads, parses and compiles a single PMML document. It is
// shared by the compile and watch commands.
func compileFile(path, functionName string, lowercase bool) (string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := xmldom.Parse(f)
	if err != nil {
		return "", nil, fmt.Errorf("malformed PMML in %s: %w", path, err)
	}

	ctx := pmmlctx.New()
	parsed, err := models.ParseRegressionDocument(ctx, doc)
	if err != nil {
		return "", nil, err
	}
	defer parsed.Release()

	result := driver.Compile(ctx, driver.Options{
		FunctionName:   functionName,
		ArgumentFields: parsed.InputFields,
		Lowercase:      lowercase,
	}, parsed.Build)

	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.Error()
		}
		return "", msgs, nil
	}
	return result.Source, nil, nil
}

func printCompileErrors(errs []string) {
	fmt.Fprintf(os.Stderr, "\n%s\n\n", color.RedString("compilation failed with %d error(s):", len(errs)))
	for i, e := range errs {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.YellowString("%d.", i+1), e)
	}
	fmt.Fprintln(os.Stderr)
}
