package main

import (
	"os"

	"github.com/stickerlab/stickerlab/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
