package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

const redactedValue = "<redacted>"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	var showSecrets bool
	view := &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration as YAML",
		Long:  "Prints the configuration after file, environment and defaults are merged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg := *cc.Config
			if !showSecrets {
				redactSecrets(&cfg)
			}
			if cc.OutputFormat == OutputJSON {
				return printJSON(cmd, cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to render config")
			}
			if cc.ConfigPath != "" {
				cmd.Printf("# source: %s\n", cc.ConfigPath)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	view.Flags().BoolVar(&showSecrets, "show-secrets", false, "print passwords and keys in clear text")
	cmd.AddCommand(view)
	return cmd
}

// redactSecrets masks every credential in cfg. Empty values stay empty so
// the output still shows what is unset.
func redactSecrets(cfg *config.Config) {
	for _, s := range []*string{
		&cfg.Database.Postgres.Password,
		&cfg.Database.Neo4j.Password,
		&cfg.Cache.Redis.Password,
		&cfg.Messaging.Kafka.SASLPassword,
		&cfg.Storage.MinIO.SecretKey,
		&cfg.Search.OpenSearch.Password,
		&cfg.Search.Milvus.Password,
		&cfg.Auth.JWTSecret,
		&cfg.Client.Token,
	} {
		if *s != "" {
			*s = redactedValue
		}
	}
}

//Personal.AI order the ending
