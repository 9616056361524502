package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tendermint/kms/cmd/kms/commands"
	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/libs/cli"
	"github.com/tendermint/kms/libs/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf := config.DefaultConfig()

	logger, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
	if err != nil {
		panic(err)
	}

	rcmd := commands.RootCommand(conf, logger)
	rcmd.AddCommand(
		commands.MakeInitCommand(conf, logger),
		commands.MakeLedgerCommand(conf, logger),
		commands.MakeShowKeysCommand(conf, logger),
		commands.MakeHWMCommand(conf, logger),
		commands.MakeVersionCommand(),
	)

	if err := cli.RunWithTrace(ctx, rcmd); err != nil {
		os.Exit(1)
	}
}
