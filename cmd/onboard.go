package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/conductorhq/conductor/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	var (
		provider = cfg.Providers.Default
		apiKey   string
		port     = strconv.Itoa(cfg.Gateway.Port)
		token    string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default model provider").
				Options(
					huh.NewOption("Anthropic (Claude)", "anthropic"),
					huh.NewOption("OpenAI (GPT)", "openai"),
				).
				Value(&provider),
			huh.NewInput().
				Title("API key").
				Description("Stored in the config file; leave empty to use the environment variable instead.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway port").
				Value(&port).
				Validate(func(s string) error {
					if n, err := strconv.Atoi(s); err != nil || n < 1 || n > 65535 {
						return fmt.Errorf("enter a port between 1 and 65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("Gateway auth token").
				Description("Optional; empty disables authentication.").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Providers.Default = provider
	switch provider {
	case "anthropic":
		if apiKey != "" {
			cfg.Providers.Anthropic.APIKey = apiKey
		}
	case "openai":
		if apiKey != "" {
			cfg.Providers.OpenAI.APIKey = apiKey
		}
	}
	cfg.Gateway.Port, _ = strconv.Atoi(port)
	cfg.Gateway.Token = token

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\nConfig written to %s\n", cfgPath)
	fmt.Fprintln(os.Stderr, "Start the gateway with:  conductor serve")
	return nil
}
