// Package main provides a one-shot utility for attendance-token key generation.
//
// It emits the asymmetric keypair used to sign and verify QR check-in tokens.
package main

import (
	"os"

	"github.com/gatherpoint/gatherpoint/internal/platform/config"
	"github.com/gatherpoint/gatherpoint/internal/tools/attendancekey"
)

func main() {
	if err := attendancekey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate attendance token key: %v", err)
	}
}
