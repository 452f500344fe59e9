package main

import (
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	var root = &cobra.Command{Use: "licsem", Short: "Semantic extraction over tender documents"}

	root.AddCommand(workerCMD(), extractCMD(), migrateCMD())
	_ = root.Execute()
}
