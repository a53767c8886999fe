package main

import (
	"log/slog"
	"os"

	"github.com/bobuhiro11/vmsr/flag"
)

func main() {
	if err := flag.Parse(); err != nil {
		slog.Error("vmsr", "error", err)
		os.Exit(1)
	}
}
