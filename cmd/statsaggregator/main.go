package main

import (
	"os"

	"github.com/G-Research/phonehome/cmd/statsaggregator/cmd"
	"github.com/G-Research/phonehome/internal/common"
)

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
