package c

import (
	"log"
	"os"
)

func main() {
	log.Fatal("not the main package")
	os.Exit(1)
}
