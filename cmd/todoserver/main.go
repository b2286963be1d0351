// Command todoserver runs the multi-user to-do HTTP service.
package main

import (
	"github.com/patric-chuzhbe/todoapp/internal/app"
)

func run() error {
	theApp, err := app.New()
	if err != nil {
		return err
	}
	defer theApp.Close()

	return theApp.Run()
}

func main() {
	if err := run(); err != nil {
		panic(err)
	}
}
