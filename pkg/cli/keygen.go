package cli

import (
	"flag"
	"fmt"

	"github.com/platinummonkey/scorecard/pkg/auth"
)

func (e *env) newKeygenCommand() *Command {
	return &Command{
		Name:        "keygen",
		Description: "Generate an Ed25519 token signing key pair",
		Run:         e.runKeygen,
	}
}

func (e *env) runKeygen(args []string) error {
	flags := flag.NewFlagSet("keygen", flag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	privatePEM, publicPEM, err := auth.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	fmt.Fprintln(e.out, "# SCORECARD_JWT_PRIVATE_KEY")
	fmt.Fprint(e.out, privatePEM)
	fmt.Fprintln(e.out, "# SCORECARD_JWT_PUBLIC_KEY")
	fmt.Fprint(e.out, publicPEM)
	e.logger.Info("Generated Ed25519 key pair")
	return nil
}
