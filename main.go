// Package main starts the firecommand CLI.
//
// @Title Fire Command API
// @Version 0.1.0
// @Description Live dispatch state and notifications for a fire command center.
// @Server http://localhost:8080 Local development
package main

import (
	"os"

	"fire/command/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
