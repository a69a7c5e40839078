package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
