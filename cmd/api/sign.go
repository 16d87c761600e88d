package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"ecommerce-payments/internal/config"
	"ecommerce-payments/internal/signature"
)

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign field=value...",
		Short: "Sign a set of fields the way the hosted payment page does",
		Long: `Sign a set of fields with the CyberSource secret key.

Every given field is signed, signed_field_names included. The output can be posted
to the notification endpoint to replay a notification by hand.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.Cybersource.SecretKey
			}
			if secret == "" {
				return fmt.Errorf("no secret: pass --secret or set CYBERSOURCE_SECRET_KEY")
			}

			fields, err := signFields(args, secret)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if form, _ := cmd.Flags().GetBool("form"); form {
				values := url.Values{}
				for k, v := range fields {
					values.Set(k, v)
				}
				fmt.Fprintln(out, values.Encode())
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(fields)
		},
	}
	cmd.Flags().String("secret", "", "secret key (defaults to CYBERSOURCE_SECRET_KEY)")
	cmd.Flags().Bool("form", false, "print as an application/x-www-form-urlencoded body")
	return cmd
}

// signFields parses key=value pairs and adds signed_field_names and signature.
func signFields(pairs []string, secret string) (map[string]string, error) {
	fields := make(map[string]string, len(pairs)+2)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", pair)
		}
		if key == signature.FieldSignature || key == signature.FieldSignedNames {
			return nil, fmt.Errorf("field %q is computed", key)
		}
		fields[key] = value
	}

	names := make([]string, 0, len(fields)+1)
	for name := range fields {
		names = append(names, name)
	}
	names = append(names, signature.FieldSignedNames)
	sort.Strings(names)

	fields[signature.FieldSignedNames] = strings.Join(names, ",")
	fields[signature.FieldSignature] = signature.SignFields(fields, secret)
	return fields, nil
}
