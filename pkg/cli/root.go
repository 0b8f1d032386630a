package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
}

// env is shared by every subcommand
type env struct {
	logger *logrus.Logger
	out    io.Writer
}

// NewRootCommand creates the scorecard-admin command tree. Results are
// written to out and progress to logger.
func NewRootCommand(logger *logrus.Logger, out io.Writer) *Command {
	e := &env{logger: logger, out: out}
	root := &Command{
		Name:        "scorecard-admin",
		Description: "Scorecard administration tool",
		Subcommands: make(map[string]*Command),
	}

	root.Subcommands["keygen"] = e.newKeygenCommand()
	root.Subcommands["migrate"] = e.newMigrateCommand()
	root.Subcommands["seed"] = e.newSeedCommand()

	return root
}

// NewLogger builds the text logger used by scorecard-admin
func NewLogger(level string, output io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for _, name := range names {
		fmt.Printf("  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// dbFlags registers the connection flags shared by migrate and seed
func dbFlags(flags *flag.FlagSet) (driver, url *string) {
	driver = flags.String("driver", getEnv("SCORECARD_DATABASE_DRIVER", "postgres"), "Database driver (postgres or sqlite3)")
	url = flags.String("db", getEnv("SCORECARD_DATABASE_URL", ""), "Database connection string")
	return driver, url
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
