package main

//go-build: CGO_ENABLED=0

import (
	"github.com/sigrigs/sigrig.go/pkg/cli/sh"
)

func main() {
	sh.Main()
}
