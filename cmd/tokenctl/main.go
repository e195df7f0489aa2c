package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server"
	"github.com/lexivault/lexivault/internal/server/config"
	"github.com/lexivault/lexivault/internal/tokenctl"
)

func main() {

	args := commandArgs(os.Args[1:])
	if len(args) == 0 {
		tokenctl.Usage(os.Stderr)
		os.Exit(2)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	core, err := server.NewCore(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer core.Close()

	if err := tokenctl.NewApp(core, os.Stdout).Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, tokenctl.ErrUsage) {
			tokenctl.Usage(os.Stderr)
		}
		core.Close()
		os.Exit(1)
	}
}

// commandArgs returns the command and its arguments: everything before the
// first flag.
func commandArgs(args []string) []string {
	for i, a := range args {
		if strings.HasPrefix(a, "-") {
			return args[:i]
		}
	}
	return args
}
