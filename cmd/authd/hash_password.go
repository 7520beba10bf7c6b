package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSession/password"
)

func newHashPasswordCommand() *cobra.Command {
	var (
		algo string
		cost int
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin for the user directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			encoded, err := hashPassword(algo, cost, plain)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return err
		},
	}

	cmd.Flags().StringVar(&algo, "algo", "argon2id", "Hash algorithm: argon2id or bcrypt")
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost")
	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func hashPassword(algo string, cost int, plain string) (string, error) {
	switch strings.ToLower(algo) {
	case "argon2id", "argon2":
		v, err := password.NewVerifier(password.DefaultArgon2Config())
		if err != nil {
			return "", err
		}
		return v.Hash(plain)
	case "bcrypt":
		return password.HashBcrypt(plain, cost)
	default:
		return "", fmt.Errorf("unknown algorithm %q", algo)
	}
}
