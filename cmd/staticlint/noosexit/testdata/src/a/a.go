package main

import (
	"log"
	"os"
)

func main() {
	defer cleanup()

	if len(os.Args) > 1 {
		os.Exit(2) // want "avoid using os.Exit in main.main"
	}

	if len(os.Args) > 2 {
		log.Fatal("too many arguments") // want "avoid using log.Fatal in main.main"
	}

	if len(os.Args) > 3 {
		log.Fatalf("%d arguments", len(os.Args)) // want "avoid using log.Fatalf in main.main"
	}

	if len(os.Args) > 4 {
		log.Fatalln("still too many") // want "avoid using log.Fatalln in main.main"
	}

	log.Println("done")
	log.Panic("panics run deferred calls")
}

func cleanup() {
	log.Fatal("outside of main.main")
	os.Exit(0)
}
