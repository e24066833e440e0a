package main

import (
	"go.uber.org/fx"

	"github.com/lablane/procure/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
