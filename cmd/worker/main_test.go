package main

import (
	"testing"

	"github.com/budgetblitz/budgetblitz/internal/app"
	_ "github.com/budgetblitz/budgetblitz/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("expected test mode to be enabled by the guard import")
	}
	main()
}
