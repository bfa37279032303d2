package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dimiro1/banner"

	"github.com/b00y0h/barberbot/internal/observability"
)

func printBanner(business, port, streamURL string) {
	tpl := fmt.Sprintf("{{ .Title \"BarberBot\" \"\" 0 }}\n"+
		"Version:  %s\n"+
		"Business: %s\n"+
		"Server:   http://localhost:%s\n"+
		"Stream:   %s\n",
		observability.Version, business, port, streamURL)
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
