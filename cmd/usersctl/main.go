package main

import (
	"os"

	"github.com/nodeadmin/backend/internal/cli"
	"github.com/nodeadmin/backend/pkg/logger"
)

func main() {
	logger.Init()
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
