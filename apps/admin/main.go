package main

import (
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/trezcool/gradebook/core"
	logsvc "github.com/trezcool/gradebook/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// start CLI
	cli := commandLine{
		conf:   conf,
		logger: logger,
		out:    os.Stdout,
	}
	err := cli.run(os.Args)
	cli.close()
	if err != nil {
		if err != errHelp {
			_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
