// worklogctl is the operator CLI: it imports tracked entries, curates
// classification rules and prints summaries straight from the store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openApp).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
