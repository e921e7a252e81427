package cmd

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edward-yakop/go-iotc/internal/app"
	"github.com/edward-yakop/go-iotc/internal/misc"
)

const envPrefix = "IOTC"

// Execute runs the command line until ctx is cancelled
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Flags are bound to IOTC_* environment
// variables and to an optional YAML config file, flags winning.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "go-iotc",
		Short: "Fetch IOTC skipjack catch and effort source data",
		Long: `go-iotc downloads the IOTC 2013 WPTT source-data files used for skipjack
tuna assessments into a local folder, creating it when absent.

Running without a sub command is the same as 'go-iotc fetch'.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				v.SetConfigType("yaml")
				if err := v.ReadInConfig(); err != nil {
					return errors.Wrap(err, "failed to read config file "+cfgFile)
				}
			}
			return misc.SetupConsole(v.GetBool("verbose"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, v, nil)
		},
	}

	defaults := app.DefaultArgs()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML config file")
	flags.StringP("output", "o", defaults.Output, "destination folder for the downloaded files")
	flags.String("base-url", defaults.BaseURL, "remote folder the files are fetched from")
	flags.Duration("timeout", defaults.Timeout, "timeout for a single request")
	flags.Int("retries", defaults.Retries, "retries per file on network or server errors")
	flags.Int("parallel", defaults.Parallel, "number of files downloaded at once")
	flags.Int("rate", defaults.Rate, "maximum requests per second, 0 is unlimited")
	flags.BoolP("verbose", "v", false, "verbose output trace log")
	_ = v.BindPFlags(flags)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(
		newFetchCmd(v),
		newVerifyCmd(v),
		newPackCmd(v),
		newListCmd(),
	)
	return rootCmd
}

func argsFrom(v *viper.Viper, datasets []string) app.ArgsList {
	return app.ArgsList{
		Output:   v.GetString("output"),
		BaseURL:  v.GetString("base-url"),
		Timeout:  v.GetDuration("timeout"),
		Retries:  v.GetInt("retries"),
		Parallel: v.GetInt("parallel"),
		Rate:     v.GetInt("rate"),
		Datasets: datasets,
	}
}

func newApp(v *viper.Viper, datasets []string) (*app.App, error) {
	opt, err := app.ParseOption(argsFrom(v, datasets))
	if err != nil {
		return nil, err
	}
	return app.NewApp(opt), nil
}
