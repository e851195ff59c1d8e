package main

import (
	stdlog "log"
	"os"
	system "os"
)

func main() {
	logger := stdlog.New(os.Stderr, "b: ", 0)

	if len(os.Args) > 1 {
		system.Exit(1) // want "avoid using os.Exit in main.main"
	}

	if len(os.Args) > 2 {
		logger.Fatalf("bad %s", os.Args[2]) // want `avoid using \(\*log\.Logger\)\.Fatalf in main\.main`
	}

	go func() {
		stdlog.Fatalln("from a goroutine") // want "avoid using log.Fatalln in main.main"
	}()

	logger.Print("done")
}
