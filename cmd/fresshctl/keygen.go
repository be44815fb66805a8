package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EthanShoeDev/fressh/sshclient"
)

func newKeygenCmd() *cobra.Command {
	var (
		keyType string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			kt, err := parseKeyType(keyType)
			if err != nil {
				return err
			}

			pemKey, err := sshclient.GenerateKeyPair(kt)
			if err != nil {
				return fmt.Errorf("generate key pair: %w", err)
			}

			if outFile == "" {
				fmt.Print(pemKey)
				return nil
			}
			return os.WriteFile(outFile, []byte(pemKey), 0o600)
		},
	}

	cmd.Flags().StringVar(&keyType, "type", "ed25519", "key type: rsa, ecdsa, ed25519")
	cmd.Flags().StringVar(&outFile, "out", "", "write the key to this file instead of stdout")

	return cmd
}

func newValidateKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-key <file>",
		Short: "Parse and re-serialize a private key, failing if it's invalid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pemBytes, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading key file: %w", err)
			}
			canonical, err := sshclient.ValidatePrivateKey(string(pemBytes))
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			fmt.Print(canonical)
			return nil
		},
	}
	return cmd
}

func parseKeyType(name string) (sshclient.KeyType, error) {
	switch name {
	case "rsa":
		return sshclient.KeyRsa, nil
	case "ecdsa":
		return sshclient.KeyEcdsa, nil
	case "ed25519":
		return sshclient.KeyEd25519, nil
	case "ed448":
		return sshclient.KeyEd448, nil
	default:
		return 0, fmt.Errorf("unknown key type %q: want rsa, ecdsa, or ed25519", name)
	}
}
