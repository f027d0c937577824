// Package main 启动 docpipe.
package main

import (
	"os"

	"github.com/yeisme/docpipe/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
