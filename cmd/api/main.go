package main

import (
	"fmt"
	"os"

	"github.com/remesaops/remesas-backend/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "remesas-api: %v\n", err)
		os.Exit(1)
	}
}
