// Command students runs the students HTTP API.
package main

import (
	"github.com/patric-chuzhbe/students/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		panic(err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		panic(err)
	}
}
