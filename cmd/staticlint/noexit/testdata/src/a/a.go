package main

import (
	"log"
	"os"
	osalias "os"
)

func helper() {
	os.Exit(2)
}

func main() {
	defer helper()

	if len(os.Args) > 3 {
		log.Fatalf("too many args: %d", len(os.Args)) // want "avoid using log.Fatalf in main.main"
	}
	if len(os.Args) > 2 {
		osalias.Exit(1) // want "avoid using os.Exit in main.main"
	}

	func() {
		os.Exit(0) // want "avoid using os.Exit in main.main"
	}()

	log.Println("done")
}
