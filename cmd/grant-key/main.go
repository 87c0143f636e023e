// Package main provides a one-shot utility for caller grant key generation.
//
// It emits the asymmetric keypair used to sign and verify contacts grants.
package main

import (
	"os"

	"github.com/walletbook/walletbook/internal/platform/config"
	"github.com/walletbook/walletbook/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate grant key: %v", err)
	}
}
