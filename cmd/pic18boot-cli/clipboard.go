package main

import (
	"fmt"
	"os"

	"golang.design/x/clipboard"
)

// copyToClipboard best-effort copies text to the system clipboard for
// -copy-checksum. Clipboard access can fail in headless environments; that
// is never fatal to the command that produced the value.
func copyToClipboard(text string) {
	if err := clipboard.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "pic18boot-cli: clipboard unavailable: %v\n", err)
		return
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
}
