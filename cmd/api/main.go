package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ecommerce-payments/internal/config"
	"ecommerce-payments/internal/payment"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "payments",
		Short:   "Hosted payment page integration: checkout, notifications and order placement",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(processorsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRegistry instantiates every configured processor.
func buildRegistry(cfg config.Config) (*payment.Registry, error) {
	cybersource, err := payment.NewCybersource(cfg.Cybersource, cfg.LanguageCode)
	if err != nil {
		return nil, fmt.Errorf("configuring %s: %w", payment.CybersourceName, err)
	}
	return payment.NewRegistry(cfg.DefaultPaymentProcessor, cybersource)
}

func processorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "processors",
		Short: "List the configured payment processors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range registry.Names() {
				p, _ := registry.Get(name)
				marker := " "
				if p == registry.Default() {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-12s %s\n", marker, name, p.PaymentPageURL())
			}
			return nil
		},
	}
}
