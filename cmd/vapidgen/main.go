// Command vapidgen prints a fresh VAPID key pair in secrets.env form.
package main

import (
	"fmt"
	"os"

	"github.com/syuchan1005/CardNotifier/internal/webpush"
)

func main() {
	pub, priv, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("WEB_PUSH_PUBLIC_KEY=%s\nWEB_PUSH_PRIVATE_KEY=%s\n", pub, priv)
}
