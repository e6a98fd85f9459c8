package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"webpush-demo-backend/internal/vapid"
)

type keysOutput struct {
	Push vapid.KeyPair `yaml:"push"`
}

func newKeysCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate a VAPID key pair",
		Long:  "Generate a new P-256 VAPID key pair and print it as a config snippet.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := vapid.GenerateKeyPair()
			if err != nil {
				return err
			}

			snippet, err := yaml.Marshal(keysOutput{Push: kp})
			if err != nil {
				return fmt.Errorf("encoding key pair: %w", err)
			}

			if plain {
				_, err = cmd.OutOrStdout().Write(snippet)
				return err
			}

			body := lipgloss.JoinVertical(lipgloss.Left,
				titleStyle.Render("New VAPID key pair"),
				labelStyle.Render("Add this to your config file. Keep the private key secret."),
				"",
				string(snippet),
			)
			fmt.Fprintln(cmd.OutOrStdout(), boxStyle.Render(body))
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print only the YAML snippet")
	return cmd
}
