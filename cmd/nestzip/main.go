// Command nestzip lists, reads and verifies entries of nested archives.
//
// Addresses use the form root!/nested.jar!/entry, where root is a local
// path, a file: URL or an http(s) URL:
//
//	nestzip ls app.jar!/BOOT-INF/lib/dep.jar
//	nestzip cat app.jar!/BOOT-INF/lib/dep.jar!/META-INF/MANIFEST.MF
//	nestzip stat jar:https://example.com/app.jar!/config.yaml
//	nestzip verify app.jar
//
// Global flags can also be set with NESTZIP_* environment variables, for
// example NESTZIP_LAZY=true or NESTZIP_RUNTIME_VERSION=17.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
