package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/checkdesk/internal/deskcli"
)

func main() {
	if err := deskcli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, deskcli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			deskcli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
