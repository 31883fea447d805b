// Command mailtoken obtains the long-lived refresh token the mail relay
// needs. It prints a consent URL, reads the authorization code pasted back
// by the operator and prints the resulting refresh token.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
